package domain

import (
	"context"
	"errors"
	"time"
)

type CreateSessionRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Instructor  string    `json:"instructor"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Capacity    int       `json:"capacity"`
}

type ListUpcomingRequest struct {
	From  *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To    *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit int        `form:"limit"`
}

// MemberReservation pairs a reservation with its session for the member's schedule.
type MemberReservation struct {
	Reservation
	Session ClassSession `json:"session"`
}

type Service interface {
	CreateSession(ctx context.Context, locationID string, req CreateSessionRequest) (*ClassSession, error)
	GetSession(ctx context.Context, id string) (*ClassSession, error)
	ListUpcoming(ctx context.Context, locationID string, req ListUpcomingRequest) ([]ClassSession, error)
	// CancelSession cancels the session and every reservation on it.
	CancelSession(ctx context.Context, id string) (*ClassSession, error)

	Reserve(ctx context.Context, sessionID, memberID string) (*Reservation, error)
	GetReservation(ctx context.Context, id string) (*Reservation, error)
	CancelReservation(ctx context.Context, id string) (*Reservation, error)
	CheckIn(ctx context.Context, id string) (*Reservation, error)
	ListSessionReservations(ctx context.Context, sessionID string) ([]Reservation, error)
	ListMemberReservations(ctx context.Context, memberID string) ([]MemberReservation, error)
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidCapacity  = errors.New("invalid_capacity")
	ErrSessionNotFound  = errors.New("class_session_not_found")
	ErrSessionCanceled  = errors.New("class_session_canceled")
	ErrSessionStarted   = errors.New("class_session_started")
	ErrSessionFull      = errors.New("class_session_full")
	ErrNotFound         = errors.New("reservation_not_found")
	ErrAlreadyReserved  = errors.New("already_reserved")
	ErrNotConfirmed     = errors.New("reservation_not_confirmed")
)
