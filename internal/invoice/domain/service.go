package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"gorm.io/gorm"
)

type ItemRequest struct {
	Description string
	Quantity    int64
	UnitPrice   int64
}

type CreateInvoiceRequest struct {
	LocationID     snowflake.ID
	MemberID       snowflake.ID
	SubscriptionID *snowflake.ID
	Currency       string
	Description    string
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	// DueAt defaults to the configured number of days after creation.
	DueAt *time.Time
	Tax   int64
	Items []ItemRequest
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status   string `form:"status"`
	MemberID string `form:"member_id"`
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type MarkPaidRequest struct {
	PaidAt          *time.Time `json:"paid_at"`
	PaymentIntentID string     `json:"payment_intent_id"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	// CreateWithTx writes the invoice inside the caller's transaction.
	CreateWithTx(ctx context.Context, tx *gorm.DB, req CreateInvoiceRequest) (*Invoice, error)
	Get(ctx context.Context, id string) (*Invoice, error)
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*Invoice, error)
	ListByMember(ctx context.Context, memberID string, req ListInvoiceRequest) (ListInvoiceResponse, error)
	ListByLocation(ctx context.Context, locationID string, req ListInvoiceRequest) (ListInvoiceResponse, error)
	ListOverdue(ctx context.Context, now time.Time, afterID snowflake.ID, limit int) ([]Invoice, error)
	// ClaimOverdueReminder reports true exactly once per open invoice.
	ClaimOverdueReminder(ctx context.Context, id snowflake.ID, at time.Time) (bool, error)
	ReleaseOverdueReminder(ctx context.Context, id snowflake.ID) error

	MarkPaid(ctx context.Context, id string, req MarkPaidRequest) (*Invoice, error)
	MarkUncollectible(ctx context.Context, id string) (*Invoice, error)
	Void(ctx context.Context, id string) (*Invoice, error)
	SetPaymentIntent(ctx context.Context, id string, paymentIntentID string) error

	RenderPDF(ctx context.Context, id string) ([]byte, error)
	// Send queues the invoice email.
	Send(ctx context.Context, id string) error
}

var (
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidItems    = errors.New("invalid_items")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidStatus   = errors.New("invalid_status")
	ErrNotFound        = errors.New("invoice_not_found")
	ErrNotOpen         = errors.New("invoice_not_open")
	ErrAlreadyPaid     = errors.New("invoice_already_paid")
)
