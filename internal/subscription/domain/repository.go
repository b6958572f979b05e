package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	LocationID snowflake.ID
	MemberID   snowflake.ID
	Status     string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindLive(ctx context.Context, db *gorm.DB, memberID, planID snowflake.ID) (*Subscription, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]Subscription, error)
	ListDueForRenewal(ctx context.Context, db *gorm.DB, before time.Time, afterID snowflake.ID, limit int) ([]Subscription, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	// TransitionStatus updates only when the row is still in one of from.
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []string, to string, fields map[string]any) (bool, error)
	// AdvancePeriod moves a live subscription to its next period only when its
	// renewal task id still matches, so a duplicate renewal run changes nothing.
	AdvancePeriod(ctx context.Context, db *gorm.DB, id snowflake.ID, renewalTaskID string, fields map[string]any) (bool, error)
}
