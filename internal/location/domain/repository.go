package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	StaffUserID snowflake.ID
	Status      string
	Name        string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, location *Location) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Location, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Location, error)
	SlugsWithPrefix(ctx context.Context, db *gorm.DB, base string) ([]string, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Location, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error

	UpsertStaff(ctx context.Context, db *gorm.DB, staff *LocationStaff) error
	FindStaff(ctx context.Context, db *gorm.DB, locationID, userID snowflake.ID) (*LocationStaff, error)
	ListStaff(ctx context.Context, db *gorm.DB, locationID snowflake.ID) ([]LocationStaff, error)
	DeleteStaff(ctx context.Context, db *gorm.DB, locationID, userID snowflake.ID) (int64, error)
	CountOwners(ctx context.Context, db *gorm.DB, locationID snowflake.ID) (int64, error)
}
