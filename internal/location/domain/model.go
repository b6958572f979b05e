package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Staff roles as stored in location_staff.role.
const (
	StaffOwner = "owner"
	StaffAdmin = "admin"
	StaffStaff = "staff"
)

type Location struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name            string            `gorm:"not null" json:"name"`
	Slug            string            `gorm:"not null;uniqueIndex" json:"slug"`
	Email           string            `json:"email,omitempty"`
	Phone           string            `json:"phone,omitempty"`
	Address         string            `json:"address,omitempty"`
	Timezone        string            `gorm:"not null;default:'UTC'" json:"timezone"`
	Currency        string            `gorm:"not null;default:'USD'" json:"currency"`
	Status          string            `gorm:"not null;default:'active'" json:"status"`
	StripeAccountID *string           `json:"stripe_account_id,omitempty"`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null" json:"updated_at"`
}

func (Location) TableName() string { return "locations" }

// Loc returns the *time.Location for the configured timezone, UTC when unknown.
func (l Location) Loc() *time.Location {
	tz, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.UTC
	}
	return tz
}

type LocationStaff struct {
	LocationID snowflake.ID `gorm:"primaryKey" json:"location_id"`
	UserID     snowflake.ID `gorm:"primaryKey" json:"user_id"`
	Role       string       `gorm:"not null" json:"role"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

func (LocationStaff) TableName() string { return "location_staff" }
