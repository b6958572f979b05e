package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/invoice/domain"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByPaymentIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (*domain.Invoice, error) {
	return r.findOne(ctx, db, "payment_intent_id = ?", paymentIntentID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Invoice, error) {
	var invoice domain.Invoice
	if err := db.WithContext(ctx).Where(query, args...).Limit(1).Find(&invoice).Error; err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	var items []domain.InvoiceItem
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Invoice, error) {
	stmt := db.WithContext(ctx).Model(&domain.Invoice{})
	if filter.LocationID != 0 {
		stmt = stmt.Where("location_id = ?", filter.LocationID)
	}
	if filter.MemberID != 0 {
		stmt = stmt.Where("member_id = ?", filter.MemberID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt, err := pagination.Apply(stmt, page, "invoices")
	if err != nil {
		return nil, err
	}
	var invoices []*domain.Invoice
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) ListOverdue(ctx context.Context, db *gorm.DB, now time.Time, afterID snowflake.ID, limit int) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	err := db.WithContext(ctx).
		Where("status = ? AND due_at < ? AND id > ?", domain.StatusOpen, now, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&invoices).Error
	return invoices, err
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to string, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ClaimOverdueReminder(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND status = ? AND overdue_reminded_at IS NULL", id, domain.StatusOpen).
		UpdateColumn("overdue_reminded_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ReleaseOverdueReminder(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ?", id).
		UpdateColumn("overdue_reminded_at", nil).Error
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.Invoice{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) LocationSlug(ctx context.Context, db *gorm.DB, locationID snowflake.ID) (string, error) {
	var row struct {
		Slug string
	}
	err := db.WithContext(ctx).Raw(`SELECT slug FROM locations WHERE id = ?`, locationID).Scan(&row).Error
	return row.Slug, err
}
