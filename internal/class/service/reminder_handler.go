package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/monstrox/monstro/internal/class/domain"
	"github.com/monstrox/monstro/internal/email"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/notification"
	"github.com/monstrox/monstro/internal/queue"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ReminderHandlerParams struct {
	fx.In

	Classes   domain.Service
	Locations locationdomain.Service
	Members   memberdomain.Service
	Emails    email.Dispatcher
	Notifier  notification.Notifier `optional:"true"`
	Log       *zap.Logger
}

// NewReminderHandler emails and pushes a reminder for a confirmed reservation.
// Reservations canceled or checked in since scheduling are skipped.
func NewReminderHandler(p ReminderHandlerParams) queue.HandlerRegistration {
	log := p.Log.Named("class.worker")
	return queue.HandlerRegistration{
		TaskType: queue.TypeClassReminder,
		Handler: asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			var payload queue.ClassReminderPayload
			if err := queue.Decode(task, &payload); err != nil {
				return err
			}
			sent, err := remind(ctx, p, payload.ReservationID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidID) ||
					errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, memberdomain.ErrNotFound) {
					return fmt.Errorf("reservation %s: %v: %w", payload.ReservationID, err, asynq.SkipRetry)
				}
				return err
			}
			log.Info("class reminder handled", zap.String("reservation_id", payload.ReservationID), zap.Bool("sent", sent))
			return nil
		}),
	}
}

func remind(ctx context.Context, p ReminderHandlerParams, reservationID string) (bool, error) {
	reservation, err := p.Classes.GetReservation(ctx, reservationID)
	if err != nil {
		return false, err
	}
	if reservation.Status != domain.ReservationConfirmed {
		return false, nil
	}
	session, err := p.Classes.GetSession(ctx, reservation.SessionID.String())
	if err != nil {
		return false, err
	}
	if session.Status != domain.SessionScheduled {
		return false, nil
	}
	member, err := p.Members.Get(ctx, reservation.MemberID.String())
	if err != nil {
		return false, err
	}
	tz := time.UTC
	if location, err := p.Locations.Get(ctx, session.LocationID.String()); err == nil {
		tz = location.Loc()
	}
	startsAt := session.StartsAt.In(tz).Format(time.RFC3339)

	if member.Email != "" {
		data := map[string]any{
			"first_name": member.FirstName,
			"class_name": session.Name,
			"starts_at":  startsAt,
		}
		if session.Instructor != "" {
			data["instructor"] = session.Instructor
		}
		if err := p.Emails.Enqueue(ctx, email.Message{
			To:         member.Email,
			Template:   email.TemplateClassReminder,
			Data:       data,
			LocationID: session.LocationID.String(),
		}); err != nil && !errors.Is(err, email.ErrInvalidRecipient) {
			return false, err
		}
	}

	if p.Notifier != nil && member.UserID != nil {
		err := p.Notifier.Notify(ctx, notification.Notification{
			UserID: member.UserID.String(),
			Email:  member.Email,
			Title:  session.Name + " starts soon",
			Body:   "Starts at " + session.StartsAt.In(tz).Format("3:04 PM"),
			Data: map[string]any{
				"reservation_id": reservation.ID.String(),
				"session_id":     session.ID.String(),
			},
		})
		if err != nil {
			p.Log.Warn("class reminder push failed", zap.String("reservation_id", reservationID), zap.Error(err))
		}
	}
	return true, nil
}
