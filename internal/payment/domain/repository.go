package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports false when a row with the same provider event id exists.
	Insert(ctx context.Context, db *gorm.DB, txn *Transaction) (bool, error)
	FindByEventID(ctx context.Context, db *gorm.DB, provider, eventID string) (*Transaction, error)
	// Claim takes the processing lease on an unprocessed row. It reports false
	// while another delivery holds a lease that started after staleBefore.
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, at, staleBefore time.Time) (bool, error)
	Release(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Transaction, error)
}
