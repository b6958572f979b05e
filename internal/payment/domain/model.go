package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const ProviderStripe = "stripe"

const (
	TypePayment = "payment"
	TypeRefund  = "refund"
	TypeFailure = "failure"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

// Transaction records one provider event against an invoice. ProviderEventID
// is unique so a redelivered webhook finds the row it already wrote.
type Transaction struct {
	ID                  snowflake.ID   `gorm:"primaryKey" json:"id"`
	LocationID          snowflake.ID   `gorm:"not null;index" json:"location_id"`
	MemberID            snowflake.ID   `gorm:"not null;index" json:"member_id"`
	InvoiceID           snowflake.ID   `gorm:"not null;index" json:"invoice_id"`
	Provider            string         `gorm:"not null" json:"provider"`
	ProviderEventID     string         `gorm:"not null;uniqueIndex" json:"provider_event_id"`
	ProviderObjectID    string         `gorm:"not null" json:"provider_object_id"`
	Type                string         `gorm:"not null" json:"type"`
	Status              string         `gorm:"not null" json:"status"`
	Amount              int64          `gorm:"not null" json:"amount"`
	Currency            string         `gorm:"not null" json:"currency"`
	FailureReason       string         `json:"failure_reason,omitempty"`
	Payload             datatypes.JSON `json:"-"`
	ProcessingStartedAt *time.Time     `json:"-"`
	ProcessedAt         *time.Time     `json:"processed_at,omitempty"`
	CreatedAt           time.Time      `gorm:"not null" json:"created_at"`
}

func (Transaction) TableName() string { return "payment_transactions" }
