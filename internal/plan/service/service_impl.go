package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	"github.com/monstrox/monstro/internal/clock"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	"github.com/monstrox/monstro/internal/plan/domain"
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
	AuditSvc  auditdomain.Service `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	locations locationdomain.Service
	auditSvc  auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("plan.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		locations: p.Locations,
		auditSvc:  p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, locationID string, req domain.CreatePlanRequest) (*domain.Plan, error) {
	location, err := s.locations.Get(ctx, locationID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Price < 0 {
		return nil, domain.ErrInvalidPrice
	}
	interval := strings.ToLower(strings.TrimSpace(req.Interval))
	if interval == "" {
		interval = domain.IntervalMonth
	}
	if !validInterval(interval) {
		return nil, domain.ErrInvalidInterval
	}
	count := req.IntervalCount
	if count == 0 {
		count = 1
	}
	if count < 1 {
		return nil, domain.ErrInvalidIntervalCount
	}
	if req.ClassLimit != nil && *req.ClassLimit < 0 {
		return nil, domain.ErrInvalidClassLimit
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = location.Currency
	}

	now := s.clock.Now().UTC()
	plan := domain.Plan{
		ID:            s.genID.Generate(),
		LocationID:    location.ID,
		Name:          name,
		Description:   strings.TrimSpace(req.Description),
		Price:         req.Price,
		Currency:      currency,
		Interval:      interval,
		IntervalCount: count,
		ClassLimit:    req.ClassLimit,
		Status:        domain.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, &plan); err != nil {
		return nil, err
	}

	s.audit(ctx, plan, "plan.created", map[string]any{"price": plan.Price, "interval": plan.Interval})
	return &plan, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Plan, error) {
	planID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || planID == 0 {
		return nil, domain.ErrInvalidID
	}
	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrNotFound
	}
	return plan, nil
}

func (s *Service) List(ctx context.Context, locationID string, status string) ([]domain.Plan, error) {
	lid, err := snowflake.ParseString(strings.TrimSpace(locationID))
	if err != nil || lid == 0 {
		return nil, domain.ErrInvalidID
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "":
		status = domain.StatusActive
	case "all":
		status = ""
	case domain.StatusActive, domain.StatusArchived:
	default:
		return nil, domain.ErrInvalidStatus
	}
	plans, err := s.repo.List(ctx, s.db, lid, status)
	if err != nil {
		return nil, err
	}
	if plans == nil {
		plans = []domain.Plan{}
	}
	return plans, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdatePlanRequest) (*domain.Plan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.Status == domain.StatusArchived {
		return nil, domain.ErrArchived
	}

	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		fields["name"] = name
	}
	if req.Description != nil {
		fields["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, domain.ErrInvalidPrice
		}
		fields["price"] = *req.Price
	}
	if req.ClassLimit != nil {
		if *req.ClassLimit < 0 {
			return nil, domain.ErrInvalidClassLimit
		}
		fields["class_limit"] = *req.ClassLimit
	}
	if len(fields) == 0 {
		return plan, nil
	}
	fields["updated_at"] = s.clock.Now().UTC()

	if err := s.repo.UpdateFields(ctx, s.db, plan.ID, fields); err != nil {
		return nil, err
	}
	s.audit(ctx, *plan, "plan.updated", nil)
	return s.Get(ctx, id)
}

// Archive hides the plan from new signups. Existing subscriptions keep renewing.
func (s *Service) Archive(ctx context.Context, id string) (*domain.Plan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.Status == domain.StatusArchived {
		return plan, nil
	}
	if err := s.repo.UpdateFields(ctx, s.db, plan.ID, map[string]any{
		"status":     domain.StatusArchived,
		"updated_at": s.clock.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	s.audit(ctx, *plan, "plan.archived", nil)
	return s.Get(ctx, id)
}

func (s *Service) audit(ctx context.Context, plan domain.Plan, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		LocationID: plan.LocationID,
		Action:     action,
		TargetType: "plan",
		TargetID:   plan.ID.String(),
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func validInterval(v string) bool {
	switch v {
	case domain.IntervalDay, domain.IntervalWeek, domain.IntervalMonth, domain.IntervalYear:
		return true
	}
	return false
}
