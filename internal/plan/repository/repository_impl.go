package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Create(plan).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Plan, error) {
	var plan domain.Plan
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&plan).Error; err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, locationID snowflake.ID, status string) ([]domain.Plan, error) {
	stmt := db.WithContext(ctx).Where("location_id = ?", locationID)
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	var plans []domain.Plan
	err := stmt.Order("price ASC").Order("id ASC").Find(&plans).Error
	return plans, err
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.Plan{}).Where("id = ?", id).Updates(fields).Error
}
