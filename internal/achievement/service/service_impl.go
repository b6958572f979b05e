package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/achievement/domain"
	"github.com/monstrox/monstro/internal/clock"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/notification"
	obsmetrics "github.com/monstrox/monstro/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Locations locationdomain.Service
	Members   memberdomain.Service
	Notifier  notification.Notifier `optional:"true"`
	Metrics   *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	locations locationdomain.Service
	members   memberdomain.Service
	notifier  notification.Notifier
	metrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("achievement.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		locations: p.Locations,
		members:   p.Members,
		notifier:  p.Notifier,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, locationID string, req domain.CreateAchievementRequest) (*domain.Achievement, error) {
	location, err := s.locations.Get(ctx, locationID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	trigger := strings.ToLower(strings.TrimSpace(req.Trigger))
	if !domain.ValidTrigger(trigger) {
		return nil, domain.ErrInvalidTrigger
	}
	if req.Requirement < 1 {
		return nil, domain.ErrInvalidRequirement
	}
	if req.Points < 0 {
		return nil, domain.ErrInvalidPoints
	}

	now := s.clock.Now().UTC()
	achievement := domain.Achievement{
		ID:          s.genID.Generate(),
		LocationID:  location.ID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Badge:       strings.TrimSpace(req.Badge),
		Trigger:     trigger,
		Requirement: req.Requirement,
		Points:      req.Points,
		Status:      domain.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, &achievement); err != nil {
		return nil, err
	}
	return &achievement, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Achievement, error) {
	achievementID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	achievement, err := s.repo.FindByID(ctx, s.db, achievementID)
	if err != nil {
		return nil, err
	}
	if achievement == nil {
		return nil, domain.ErrNotFound
	}
	return achievement, nil
}

func (s *Service) List(ctx context.Context, locationID string, status string) ([]domain.Achievement, error) {
	lid, err := parseID(locationID)
	if err != nil {
		return nil, err
	}
	switch status = strings.ToLower(strings.TrimSpace(status)); status {
	case "":
		status = domain.StatusActive
	case "all":
		status = ""
	case domain.StatusActive, domain.StatusArchived:
	default:
		return nil, domain.ErrInvalidStatus
	}
	items, err := s.repo.List(ctx, s.db, lid, status)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Achievement{}
	}
	return items, nil
}

func (s *Service) Archive(ctx context.Context, id string) (*domain.Achievement, error) {
	achievement, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if achievement.Status == domain.StatusArchived {
		return achievement, nil
	}
	if err := s.repo.UpdateFields(ctx, s.db, achievement.ID, map[string]any{
		"status":     domain.StatusArchived,
		"updated_at": s.clock.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) ListForMember(ctx context.Context, locationID, memberID string) ([]domain.MemberProgress, error) {
	lid, err := parseID(locationID)
	if err != nil {
		return nil, err
	}
	mid, err := parseID(memberID)
	if err != nil {
		return nil, err
	}
	achievements, err := s.repo.List(ctx, s.db, lid, domain.StatusActive)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListForMember(ctx, s.db, lid, mid)
	if err != nil {
		return nil, err
	}
	byAchievement := make(map[snowflake.ID]domain.MemberAchievement, len(rows))
	for _, row := range rows {
		byAchievement[row.AchievementID] = row
	}

	out := make([]domain.MemberProgress, 0, len(achievements))
	for _, a := range achievements {
		p := domain.MemberProgress{Achievement: a}
		if row, ok := byAchievement[a.ID]; ok {
			p.Progress = row.Progress
			p.CompletedAt = row.CompletedAt
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) Evaluate(ctx context.Context, locationID, memberID snowflake.ID, trigger string) ([]domain.Achievement, error) {
	if !domain.ValidTrigger(trigger) {
		return nil, domain.ErrInvalidTrigger
	}
	completed, awarded, err := s.evaluate(ctx, locationID, memberID, trigger)
	if err != nil {
		return nil, err
	}
	// Points earned here can unlock points_total achievements. That pass
	// does not recurse, so a chain of point awards stops after one round.
	if awarded > 0 && trigger != domain.TriggerPointsTotal {
		more, _, err := s.evaluate(ctx, locationID, memberID, domain.TriggerPointsTotal)
		if err != nil {
			return completed, err
		}
		completed = append(completed, more...)
	}
	return completed, nil
}

func (s *Service) evaluate(ctx context.Context, locationID, memberID snowflake.ID, trigger string) ([]domain.Achievement, int64, error) {
	achievements, err := s.repo.ListActiveByTrigger(ctx, s.db, locationID, trigger)
	if err != nil || len(achievements) == 0 {
		return nil, 0, err
	}
	metric, err := s.repo.Metric(ctx, s.db, trigger, locationID, memberID)
	if err != nil {
		return nil, 0, err
	}

	var (
		completed []domain.Achievement
		awarded   int64
	)
	for _, a := range achievements {
		now := s.clock.Now().UTC()
		progress := metric
		if progress > a.Requirement {
			progress = a.Requirement
		}
		if err := s.repo.UpsertProgress(ctx, s.db, &domain.MemberAchievement{
			ID:            s.genID.Generate(),
			AchievementID: a.ID,
			MemberID:      memberID,
			LocationID:    locationID,
			Progress:      progress,
			CreatedAt:     now,
			UpdatedAt:     now,
		}); err != nil {
			return completed, awarded, err
		}
		if metric < a.Requirement {
			continue
		}

		won, err := s.complete(ctx, locationID, memberID, a, now)
		if err != nil {
			return completed, awarded, err
		}
		if !won {
			continue
		}
		completed = append(completed, a)
		awarded += a.Points
		s.metrics.RecordAchievementCompleted(ctx, trigger)
		s.log.Info("achievement completed",
			zap.String("achievement_id", a.ID.String()),
			zap.String("member_id", memberID.String()),
			zap.Int64("points", a.Points),
		)
		s.notifyUnlocked(ctx, memberID, a)
	}
	return completed, awarded, nil
}

// complete stamps the achievement and credits its points in one transaction,
// so a failed credit leaves the achievement open for the next evaluation.
func (s *Service) complete(ctx context.Context, locationID, memberID snowflake.ID, a domain.Achievement, at time.Time) (bool, error) {
	var won bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		won, err = s.repo.Complete(ctx, tx, a.ID, memberID, at)
		if err != nil || !won || a.Points <= 0 {
			return err
		}
		affected, err := s.repo.AwardPoints(ctx, tx, locationID, memberID, a.Points)
		if err != nil {
			return err
		}
		if affected == 0 {
			return memberdomain.ErrNotMember
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

func (s *Service) notifyUnlocked(ctx context.Context, memberID snowflake.ID, a domain.Achievement) {
	if s.notifier == nil {
		return
	}
	member, err := s.members.Get(ctx, memberID.String())
	if err != nil || member.UserID == nil {
		return
	}
	err = s.notifier.Notify(ctx, notification.Notification{
		UserID:   member.UserID.String(),
		Email:    member.Email,
		Title:    "Achievement unlocked",
		Body:     a.Name,
		Workflow: domain.WorkflowUnlocked,
		Data: map[string]any{
			"achievement_id": a.ID.String(),
			"badge":          a.Badge,
			"points":         a.Points,
		},
	})
	if err != nil {
		s.log.Warn("achievement notification failed", zap.String("achievement_id", a.ID.String()), zap.Error(err))
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
