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
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertItems(ctx context.Context, db *gorm.DB, items []InvoiceItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByPaymentIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (*Invoice, error)
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Invoice, error)
	// ListOverdue pages open invoices past due in id order, starting after afterID.
	ListOverdue(ctx context.Context, db *gorm.DB, now time.Time, afterID snowflake.ID, limit int) ([]Invoice, error)
	// TransitionStatus moves the invoice out of from and reports whether a row changed.
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to string, fields map[string]any) (bool, error)
	// ClaimOverdueReminder stamps overdue_reminded_at on an open invoice that
	// has none and reports whether this call set it.
	ClaimOverdueReminder(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	ReleaseOverdueReminder(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	LocationSlug(ctx context.Context, db *gorm.DB, locationID snowflake.ID) (string, error)
}
