package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	SessionScheduled = "scheduled"
	SessionCanceled  = "canceled"
)

const (
	ReservationConfirmed = "confirmed"
	ReservationCanceled  = "canceled"
	ReservationAttended  = "attended"
)

type ClassSession struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	LocationID  snowflake.ID `gorm:"not null;index:idx_class_sessions_upcoming,priority:1" json:"location_id"`
	Name        string       `gorm:"not null" json:"name"`
	Description string       `json:"description,omitempty"`
	Instructor  string       `json:"instructor,omitempty"`
	StartsAt    time.Time    `gorm:"not null;index:idx_class_sessions_upcoming,priority:2" json:"starts_at"`
	EndsAt      time.Time    `gorm:"not null" json:"ends_at"`
	Capacity    int          `gorm:"not null" json:"capacity"`
	// Reserved counts confirmed and attended reservations.
	Reserved  int       `gorm:"not null;default:0" json:"reserved"`
	Status    string    `gorm:"not null;default:'scheduled'" json:"status"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ClassSession) TableName() string { return "class_sessions" }

func (s ClassSession) SpotsLeft() int {
	if left := s.Capacity - s.Reserved; left > 0 {
		return left
	}
	return 0
}

type Reservation struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	LocationID     snowflake.ID `gorm:"not null;index" json:"location_id"`
	SessionID      snowflake.ID `gorm:"not null;uniqueIndex:idx_reservation_member,priority:1" json:"session_id"`
	MemberID       snowflake.ID `gorm:"not null;uniqueIndex:idx_reservation_member,priority:2;index" json:"member_id"`
	Status         string       `gorm:"not null" json:"status"`
	CheckedInAt    *time.Time   `json:"checked_in_at,omitempty"`
	ReminderTaskID string       `json:"-"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

func (Reservation) TableName() string { return "reservations" }

// Holding reports whether the reservation occupies a spot.
func (r Reservation) Holding() bool {
	return r.Status == ReservationConfirmed || r.Status == ReservationAttended
}
