package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

const (
	IntervalDay   = "day"
	IntervalWeek  = "week"
	IntervalMonth = "month"
	IntervalYear  = "year"
)

type Plan struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	LocationID    snowflake.ID `gorm:"not null;index" json:"location_id"`
	Name          string       `gorm:"not null" json:"name"`
	Description   string       `json:"description,omitempty"`
	Price         int64        `gorm:"not null" json:"price"`
	Currency      string       `gorm:"not null" json:"currency"`
	Interval      string       `gorm:"column:billing_interval;not null" json:"interval"`
	IntervalCount int          `gorm:"not null;default:1" json:"interval_count"`
	ClassLimit    *int         `json:"class_limit,omitempty"`
	Status        string       `gorm:"not null;default:'active'" json:"status"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (Plan) TableName() string { return "plans" }

// NextPeriodEnd returns start advanced by one billing period. Month and year
// steps clamp to the last day of the target month, so Jan 31 is followed by
// Feb 28 (or 29) rather than spilling into March.
func (p Plan) NextPeriodEnd(start time.Time) time.Time {
	count := p.IntervalCount
	if count < 1 {
		count = 1
	}
	switch p.Interval {
	case IntervalDay:
		return start.AddDate(0, 0, count)
	case IntervalWeek:
		return start.AddDate(0, 0, 7*count)
	case IntervalYear:
		return addMonthsClamped(start, 12*count)
	default:
		return addMonthsClamped(start, count)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
