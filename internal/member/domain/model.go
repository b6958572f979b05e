package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	MembershipActive   = "active"
	MembershipInactive = "inactive"
	MembershipArchived = "archived"
)

const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

type Member struct {
	ID                    snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID                *snowflake.ID `gorm:"uniqueIndex" json:"user_id,omitempty"`
	FirstName             string        `gorm:"not null" json:"first_name"`
	LastName              string        `json:"last_name"`
	Email                 string        `gorm:"index" json:"email"`
	Phone                 *string       `json:"phone,omitempty"`
	Gender                *string       `json:"gender,omitempty"`
	DOB                   *time.Time    `gorm:"column:dob" json:"dob,omitempty"`
	AvatarURL             *string       `json:"avatar_url,omitempty"`
	ReferralCode          string        `gorm:"not null;uniqueIndex" json:"referral_code"`
	StripeCustomerID      *string       `json:"-"`
	StripePaymentMethodID *string       `json:"-"`
	CreatedAt             time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time     `gorm:"not null" json:"updated_at"`
}

func (Member) TableName() string { return "members" }

func (m Member) FullName() string {
	if m.LastName == "" {
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}

type MemberLocation struct {
	MemberID   snowflake.ID `gorm:"primaryKey" json:"member_id"`
	LocationID snowflake.ID `gorm:"primaryKey;index" json:"location_id"`
	Status     string       `gorm:"not null;default:'active'" json:"status"`
	Points     int64        `gorm:"not null;default:0" json:"points"`
	JoinedAt   time.Time    `gorm:"not null" json:"joined_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

func (MemberLocation) TableName() string { return "member_locations" }

// MemberSummary is a member row joined with one location's membership.
type MemberSummary struct {
	Member           `gorm:"embedded"`
	MembershipStatus string    `json:"membership_status"`
	Points           int64     `json:"points"`
	JoinedAt         time.Time `json:"joined_at"`
}

type PushToken struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID `gorm:"not null;index" json:"user_id"`
	Token     string       `gorm:"not null;uniqueIndex" json:"token"`
	Platform  string       `gorm:"not null" json:"platform"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (PushToken) TableName() string { return "push_tokens" }
