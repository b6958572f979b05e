package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusDraft         = "draft"
	StatusOpen          = "open"
	StatusPaid          = "paid"
	StatusVoid          = "void"
	StatusUncollectible = "uncollectible"
)

type Invoice struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	LocationID        snowflake.ID  `gorm:"not null;index" json:"location_id"`
	MemberID          snowflake.ID  `gorm:"not null;index" json:"member_id"`
	SubscriptionID    *snowflake.ID `gorm:"index" json:"subscription_id,omitempty"`
	Number            string        `gorm:"not null;uniqueIndex" json:"number"`
	Status            string        `gorm:"not null;default:'open';index" json:"status"`
	Currency          string        `gorm:"not null" json:"currency"`
	Subtotal          int64         `gorm:"not null;default:0" json:"subtotal"`
	Tax               int64         `gorm:"not null;default:0" json:"tax"`
	Total             int64         `gorm:"not null;default:0" json:"total"`
	Description       string        `json:"description,omitempty"`
	PeriodStart       *time.Time    `json:"period_start,omitempty"`
	PeriodEnd         *time.Time    `json:"period_end,omitempty"`
	DueAt             time.Time     `gorm:"not null;index" json:"due_at"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`
	PaymentIntentID   *string       `gorm:"index" json:"payment_intent_id,omitempty"`
	OverdueRemindedAt *time.Time    `json:"overdue_reminded_at,omitempty"`
	CreatedAt         time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"not null" json:"updated_at"`

	Items []InvoiceItem `gorm:"-" json:"items,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

type InvoiceItem struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Description string       `gorm:"not null" json:"description"`
	Quantity    int64        `gorm:"not null" json:"quantity"`
	UnitPrice   int64        `gorm:"not null" json:"unit_price"`
	Amount      int64        `gorm:"not null" json:"amount"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }
