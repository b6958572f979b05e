package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	achievementdomain "github.com/monstrox/monstro/internal/achievement/domain"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	"github.com/monstrox/monstro/internal/class/domain"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/config"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxUpcoming = 100

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Config       config.Config
	Repo         domain.Repository
	Locations    locationdomain.Service
	Members      memberdomain.Service
	Queue        queue.Client
	Achievements achievementdomain.Service `optional:"true"`
	AuditSvc     auditdomain.Service       `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	reminderLead time.Duration
	repo         domain.Repository
	locations    locationdomain.Service
	members      memberdomain.Service
	queue        queue.Client
	achievements achievementdomain.Service
	auditSvc     auditdomain.Service
}

func New(p Params) domain.Service {
	lead := p.Config.Class.ReminderLead
	if lead <= 0 {
		lead = time.Hour
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("class.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		reminderLead: lead,
		repo:         p.Repo,
		locations:    p.Locations,
		members:      p.Members,
		queue:        p.Queue,
		achievements: p.Achievements,
		auditSvc:     p.AuditSvc,
	}
}

func (s *Service) CreateSession(ctx context.Context, locationID string, req domain.CreateSessionRequest) (*domain.ClassSession, error) {
	location, err := s.locations.Get(ctx, locationID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.StartsAt.IsZero() || !req.EndsAt.After(req.StartsAt) {
		return nil, domain.ErrInvalidTimeRange
	}
	if req.Capacity < 1 {
		return nil, domain.ErrInvalidCapacity
	}

	now := s.clock.Now().UTC()
	session := domain.ClassSession{
		ID:          s.genID.Generate(),
		LocationID:  location.ID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Instructor:  strings.TrimSpace(req.Instructor),
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
		Capacity:    req.Capacity,
		Status:      domain.SessionScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertSession(ctx, s.db, &session); err != nil {
		return nil, err
	}
	s.audit(ctx, session.LocationID, "class.created", "class", session.ID, map[string]any{"starts_at": session.StartsAt})
	return &session, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*domain.ClassSession, error) {
	sessionID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.getSession(ctx, sessionID)
}

func (s *Service) getSession(ctx context.Context, id snowflake.ID) (*domain.ClassSession, error) {
	session, err := s.repo.FindSession(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Service) ListUpcoming(ctx context.Context, locationID string, req domain.ListUpcomingRequest) ([]domain.ClassSession, error) {
	lid, err := parseID(locationID)
	if err != nil {
		return nil, err
	}
	from := s.clock.Now().UTC()
	if req.From != nil && req.From.After(from) {
		from = req.From.UTC()
	}
	var to time.Time
	if req.To != nil {
		if !req.To.After(from) {
			return nil, domain.ErrInvalidTimeRange
		}
		to = req.To.UTC()
	}
	limit := req.Limit
	if limit <= 0 || limit > maxUpcoming {
		limit = maxUpcoming
	}
	sessions, err := s.repo.ListUpcoming(ctx, s.db, lid, from, to, limit)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []domain.ClassSession{}
	}
	return sessions, nil
}

func (s *Service) CancelSession(ctx context.Context, id string) (*domain.ClassSession, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionCanceled {
		return session, nil
	}

	now := s.clock.Now().UTC()
	var canceled []domain.Reservation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateSession(ctx, tx, session.ID, map[string]any{
			"status":     domain.SessionCanceled,
			"reserved":   0,
			"updated_at": now,
		}); err != nil {
			return err
		}
		reservations, err := s.repo.ListReservations(ctx, tx, session.ID, []string{domain.ReservationConfirmed})
		if err != nil {
			return err
		}
		for _, r := range reservations {
			changed, err := s.repo.TransitionReservation(ctx, tx, r.ID, domain.ReservationConfirmed, domain.ReservationCanceled, map[string]any{
				"reminder_task_id": "",
				"updated_at":       now,
			})
			if err != nil {
				return err
			}
			if changed {
				canceled = append(canceled, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range canceled {
		s.removeReminder(ctx, r)
	}
	s.log.Info("class session canceled",
		zap.String("session_id", session.ID.String()),
		zap.Int("reservations_canceled", len(canceled)),
	)
	s.audit(ctx, session.LocationID, "class.canceled", "class", session.ID, map[string]any{"reservations": len(canceled)})
	return s.getSession(ctx, session.ID)
}

func (s *Service) Reserve(ctx context.Context, sessionID, memberID string) (*domain.Reservation, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionCanceled {
		return nil, domain.ErrSessionCanceled
	}
	now := s.clock.Now().UTC()
	if !session.StartsAt.After(now) {
		return nil, domain.ErrSessionStarted
	}
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	membership, err := s.members.GetMembership(ctx, session.LocationID, member.ID)
	if err != nil {
		return nil, err
	}
	if membership.Status != memberdomain.MembershipActive {
		return nil, memberdomain.ErrNotMember
	}

	var reservation domain.Reservation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindReservationFor(ctx, tx, session.ID, member.ID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Holding() {
			return domain.ErrAlreadyReserved
		}
		took, err := s.repo.TakeSpot(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		if !took {
			return domain.ErrSessionFull
		}

		if existing != nil {
			reservation = *existing
			reservation.Status = domain.ReservationConfirmed
			reservation.UpdatedAt = now
			return s.repo.UpdateReservation(ctx, tx, reservation.ID, map[string]any{
				"status":     domain.ReservationConfirmed,
				"updated_at": now,
			})
		}
		reservation = domain.Reservation{
			ID:         s.genID.Generate(),
			LocationID: session.LocationID,
			SessionID:  session.ID,
			MemberID:   member.ID,
			Status:     domain.ReservationConfirmed,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.repo.InsertReservation(ctx, tx, &reservation); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyReserved
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if taskID := s.scheduleReminder(ctx, *session, reservation); taskID != "" {
		reservation.ReminderTaskID = taskID
		if err := s.repo.UpdateReservation(ctx, s.db, reservation.ID, map[string]any{"reminder_task_id": taskID}); err != nil {
			s.log.Warn("reminder id not saved", zap.String("reservation_id", reservation.ID.String()), zap.Error(err))
		}
	}
	s.evaluate(ctx, reservation, achievementdomain.TriggerReservationCount)
	return &reservation, nil
}

func (s *Service) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	reservationID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	reservation, err := s.repo.FindReservation(ctx, s.db, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		return nil, domain.ErrNotFound
	}
	return reservation, nil
}

func (s *Service) CancelReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	reservation, err := s.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changed, err := s.repo.TransitionReservation(ctx, tx, reservation.ID, domain.ReservationConfirmed, domain.ReservationCanceled, map[string]any{
			"reminder_task_id": "",
			"updated_at":       now,
		})
		if err != nil {
			return err
		}
		if !changed {
			return domain.ErrNotConfirmed
		}
		return s.repo.ReleaseSpot(ctx, tx, reservation.SessionID)
	})
	if err != nil {
		return nil, err
	}
	s.removeReminder(ctx, *reservation)
	return s.GetReservation(ctx, id)
}

func (s *Service) CheckIn(ctx context.Context, id string) (*domain.Reservation, error) {
	reservation, err := s.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	changed, err := s.repo.TransitionReservation(ctx, s.db, reservation.ID, domain.ReservationConfirmed, domain.ReservationAttended, map[string]any{
		"checked_in_at": now,
		"updated_at":    now,
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domain.ErrNotConfirmed
	}
	s.removeReminder(ctx, *reservation)
	s.evaluate(ctx, *reservation, achievementdomain.TriggerCheckInCount)
	s.audit(ctx, reservation.LocationID, "class.check_in", "reservation", reservation.ID, map[string]any{
		"member_id": reservation.MemberID.String(),
	})
	return s.GetReservation(ctx, id)
}

func (s *Service) ListSessionReservations(ctx context.Context, sessionID string) ([]domain.Reservation, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.repo.ListReservations(ctx, s.db, session.ID, nil)
	if err != nil {
		return nil, err
	}
	if reservations == nil {
		reservations = []domain.Reservation{}
	}
	return reservations, nil
}

func (s *Service) ListMemberReservations(ctx context.Context, memberID string) ([]domain.MemberReservation, error) {
	mid, err := parseID(memberID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.repo.ListMemberReservations(ctx, s.db, mid, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	out := make([]domain.MemberReservation, 0, len(reservations))
	sessions := map[snowflake.ID]*domain.ClassSession{}
	for _, r := range reservations {
		session, ok := sessions[r.SessionID]
		if !ok {
			if session, err = s.getSession(ctx, r.SessionID); err != nil {
				return nil, err
			}
			sessions[r.SessionID] = session
		}
		out = append(out, domain.MemberReservation{Reservation: r, Session: *session})
	}
	return out, nil
}

// scheduleReminder returns the task id, or "" when the reminder time has passed.
func (s *Service) scheduleReminder(ctx context.Context, session domain.ClassSession, reservation domain.Reservation) string {
	at := session.StartsAt.Add(-s.reminderLead)
	if !at.After(s.clock.Now()) {
		return ""
	}
	taskID, err := s.queue.Schedule(ctx, queue.TypeClassReminder, queue.ClassReminderPayload{
		ReservationID: reservation.ID.String(),
	}, at, queue.ReminderTaskID(reservation.ID.String()))
	if err != nil {
		s.log.Warn("reminder schedule failed", zap.String("reservation_id", reservation.ID.String()), zap.Error(err))
		return ""
	}
	return taskID
}

func (s *Service) removeReminder(ctx context.Context, reservation domain.Reservation) {
	if reservation.ReminderTaskID == "" {
		return
	}
	if err := s.queue.Remove(ctx, queue.QueueClassReminders, reservation.ReminderTaskID); err != nil {
		s.log.Warn("reminder removal failed", zap.String("task_id", reservation.ReminderTaskID), zap.Error(err))
	}
}

func (s *Service) evaluate(ctx context.Context, r domain.Reservation, trigger string) {
	if s.achievements == nil {
		return
	}
	if _, err := s.achievements.Evaluate(ctx, r.LocationID, r.MemberID, trigger); err != nil {
		s.log.Warn("achievement evaluation failed", zap.String("trigger", trigger), zap.Error(err))
	}
}

func (s *Service) audit(ctx context.Context, locationID snowflake.ID, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		LocationID: locationID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID.String(),
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
