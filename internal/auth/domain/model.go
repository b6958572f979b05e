// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleUser  = "user"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// User is a login identity. Gym-specific profile data lives on the member.
type User struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Email           string       `gorm:"type:text;not null;uniqueIndex" json:"email"`
	PasswordHash    string       `gorm:"type:text;not null" json:"-"`
	FirstName       string       `gorm:"type:text;not null" json:"first_name"`
	LastName        string       `gorm:"type:text" json:"last_name"`
	Phone           *string      `gorm:"type:text" json:"phone,omitempty"`
	AvatarURL       *string      `gorm:"type:text" json:"avatar_url,omitempty"`
	Role            string       `gorm:"type:text;not null;default:'user'" json:"role"`
	EmailVerifiedAt *time.Time   `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }
