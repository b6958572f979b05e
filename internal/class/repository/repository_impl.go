package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/class/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertSession(ctx context.Context, db *gorm.DB, session *domain.ClassSession) error {
	return db.WithContext(ctx).Create(session).Error
}

func (r *repo) FindSession(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ClassSession, error) {
	var session domain.ClassSession
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&session).Error; err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, nil
	}
	return &session, nil
}

func (r *repo) ListUpcoming(ctx context.Context, db *gorm.DB, locationID snowflake.ID, from, to time.Time, limit int) ([]domain.ClassSession, error) {
	stmt := db.WithContext(ctx).
		Where("location_id = ? AND status = ? AND starts_at >= ?", locationID, domain.SessionScheduled, from)
	if !to.IsZero() {
		stmt = stmt.Where("starts_at < ?", to)
	}
	var sessions []domain.ClassSession
	err := stmt.Order("starts_at ASC").Order("id ASC").Limit(limit).Find(&sessions).Error
	return sessions, err
}

func (r *repo) UpdateSession(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.ClassSession{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) TakeSpot(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE class_sessions SET reserved = reserved + 1 WHERE id = ? AND status = ? AND reserved < capacity`,
		sessionID, domain.SessionScheduled,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ReleaseSpot(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE class_sessions SET reserved = reserved - 1 WHERE id = ? AND reserved > 0`,
		sessionID,
	).Error
}

func (r *repo) InsertReservation(ctx context.Context, db *gorm.DB, reservation *domain.Reservation) error {
	return db.WithContext(ctx).Create(reservation).Error
}

func (r *repo) FindReservation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Reservation, error) {
	return r.findReservation(ctx, db, "id = ?", id)
}

func (r *repo) FindReservationFor(ctx context.Context, db *gorm.DB, sessionID, memberID snowflake.ID) (*domain.Reservation, error) {
	return r.findReservation(ctx, db, "session_id = ? AND member_id = ?", sessionID, memberID)
}

func (r *repo) findReservation(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Reservation, error) {
	var reservation domain.Reservation
	if err := db.WithContext(ctx).Where(query, args...).Limit(1).Find(&reservation).Error; err != nil {
		return nil, err
	}
	if reservation.ID == 0 {
		return nil, nil
	}
	return &reservation, nil
}

func (r *repo) ListReservations(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, statuses []string) ([]domain.Reservation, error) {
	stmt := db.WithContext(ctx).Where("session_id = ?", sessionID)
	if len(statuses) > 0 {
		stmt = stmt.Where("status IN ?", statuses)
	}
	var reservations []domain.Reservation
	err := stmt.Order("created_at ASC").Order("id ASC").Find(&reservations).Error
	return reservations, err
}

func (r *repo) ListMemberReservations(ctx context.Context, db *gorm.DB, memberID snowflake.ID, from time.Time) ([]domain.Reservation, error) {
	var reservations []domain.Reservation
	err := db.WithContext(ctx).
		Select("reservations.*").
		Joins("JOIN class_sessions ON class_sessions.id = reservations.session_id").
		Where("reservations.member_id = ? AND class_sessions.starts_at >= ?", memberID, from).
		Order("class_sessions.starts_at ASC").
		Find(&reservations).Error
	return reservations, err
}

func (r *repo) TransitionReservation(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to string, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) UpdateReservation(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.Reservation{}).Where("id = ?", id).Updates(fields).Error
}
