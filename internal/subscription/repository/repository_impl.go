package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/subscription/domain"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Create(sub).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindLive(ctx context.Context, db *gorm.DB, memberID, planID snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db, "member_id = ? AND plan_id = ? AND status IN ?",
		memberID, planID, []string{domain.StatusActive, domain.StatusPastDue})
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Subscription, error) {
	var sub domain.Subscription
	if err := db.WithContext(ctx).Where(query, args...).Limit(1).Find(&sub).Error; err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]domain.Subscription, error) {
	stmt := db.WithContext(ctx).Model(&domain.Subscription{})
	if filter.LocationID != 0 {
		stmt = stmt.Where("location_id = ?", filter.LocationID)
	}
	if filter.MemberID != 0 {
		stmt = stmt.Where("member_id = ?", filter.MemberID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt, err := pagination.Apply(stmt, page, "subscriptions")
	if err != nil {
		return nil, err
	}
	var subs []domain.Subscription
	if err := stmt.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) ListDueForRenewal(ctx context.Context, db *gorm.DB, before time.Time, afterID snowflake.ID, limit int) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := db.WithContext(ctx).
		Where("status IN ? AND current_period_end < ? AND id > ?", []string{domain.StatusActive, domain.StatusPastDue}, before, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.Subscription{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []string, to string, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) AdvancePeriod(ctx context.Context, db *gorm.DB, id snowflake.ID, renewalTaskID string, fields map[string]any) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ? AND renewal_task_id = ? AND status IN ?",
			id, renewalTaskID, []string{domain.StatusActive, domain.StatusPastDue}).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
