package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusPaused   = "paused"
	StatusCanceled = "canceled"
)

type Subscription struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	LocationID         snowflake.ID `gorm:"not null;index" json:"location_id"`
	MemberID           snowflake.ID `gorm:"not null;index" json:"member_id"`
	PlanID             snowflake.ID `gorm:"not null;index" json:"plan_id"`
	Status             string       `gorm:"not null;index" json:"status"`
	CurrentPeriodStart time.Time    `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time    `gorm:"not null;index" json:"current_period_end"`
	CancelAtPeriodEnd  bool         `gorm:"not null;default:false" json:"cancel_at_period_end"`
	CanceledAt         *time.Time   `json:"canceled_at,omitempty"`
	PausedAt           *time.Time   `json:"paused_at,omitempty"`
	RenewalTaskID      string       `json:"-"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Live reports whether the subscription still renews.
func (s Subscription) Live() bool {
	return s.Status == StatusActive || s.Status == StatusPastDue
}

var transitions = map[string][]string{
	StatusActive:  {StatusPaused, StatusCanceled, StatusPastDue},
	StatusPastDue: {StatusActive, StatusCanceled},
	StatusPaused:  {StatusActive, StatusCanceled},
}

// CanTransition reports whether from may move to to. Canceled is terminal.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
