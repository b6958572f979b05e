package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, txn *domain.Transaction) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "provider_event_id"}}, DoNothing: true}).
		Create(txn)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByEventID(ctx context.Context, db *gorm.DB, provider, eventID string) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, eventID).
		Limit(1).
		Find(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, at, staleBefore time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ? AND processed_at IS NULL", id).
		Where("processing_started_at IS NULL OR processing_started_at < ?", staleBefore).
		Update("processing_started_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Release(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ? AND processed_at IS NULL", id).
		Update("processing_started_at", nil).Error
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ?", id).
		Update("processed_at", at).Error
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}
