package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertSession(ctx context.Context, db *gorm.DB, session *ClassSession) error
	FindSession(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ClassSession, error)
	ListUpcoming(ctx context.Context, db *gorm.DB, locationID snowflake.ID, from, to time.Time, limit int) ([]ClassSession, error)
	UpdateSession(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	// TakeSpot increments reserved only while a spot is free.
	TakeSpot(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (bool, error)
	ReleaseSpot(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) error

	InsertReservation(ctx context.Context, db *gorm.DB, reservation *Reservation) error
	FindReservation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Reservation, error)
	FindReservationFor(ctx context.Context, db *gorm.DB, sessionID, memberID snowflake.ID) (*Reservation, error)
	ListReservations(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, statuses []string) ([]Reservation, error)
	ListMemberReservations(ctx context.Context, db *gorm.DB, memberID snowflake.ID, from time.Time) ([]Reservation, error)
	// TransitionReservation updates only while the reservation is in from.
	TransitionReservation(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to string, fields map[string]any) (bool, error)
	UpdateReservation(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
}
