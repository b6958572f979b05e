package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	LocationID snowflake.ID
	Status     string
	Query      string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, member *Member) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Member, error)
	FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Member, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error

	InsertMembership(ctx context.Context, db *gorm.DB, membership *MemberLocation) error
	FindMembership(ctx context.Context, db *gorm.DB, locationID, memberID snowflake.ID) (*MemberLocation, error)
	UpdateMembershipStatus(ctx context.Context, db *gorm.DB, locationID, memberID snowflake.ID, status string) (int64, error)
	ListByLocation(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]MemberSummary, error)
	// IncrementPoints only touches active memberships and reports rows changed.
	IncrementPoints(ctx context.Context, db *gorm.DB, locationID, memberID snowflake.ID, delta int64) (int64, error)

	UpsertPushToken(ctx context.Context, db *gorm.DB, token *PushToken) error
	ListPushTokens(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]PushToken, error)
	DeletePushToken(ctx context.Context, db *gorm.DB, token string) error
}
