package service

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/location/domain"
	"github.com/monstrox/monstro/pkg/db"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxSlugAttempts = 3

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("location.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, creatorID string, req domain.CreateLocationRequest) (*domain.Location, error) {
	ownerID, err := parseID(creatorID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	emailAddr, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	timezone, err := normalizeTimezone(req.Timezone)
	if err != nil {
		return nil, err
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	location := domain.Location{
		ID:        s.genID.Generate(),
		Name:      name,
		Email:     emailAddr,
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		Timezone:  timezone,
		Currency:  currency,
		Status:    domain.StatusActive,
		Metadata:  datatypes.JSONMap(req.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if location.Metadata == nil {
		location.Metadata = datatypes.JSONMap{}
	}

	// A concurrent create can claim the same slug between the lookup and
	// the insert; the unique index catches it and we pick again.
	for attempt := 0; ; attempt++ {
		location.Slug, err = s.uniqueSlug(ctx, name)
		if err != nil {
			return nil, err
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.Insert(ctx, tx, &location); err != nil {
				return err
			}
			return s.repo.UpsertStaff(ctx, tx, &domain.LocationStaff{
				LocationID: location.ID,
				UserID:     ownerID,
				Role:       domain.StaffOwner,
				CreatedAt:  now,
			})
		})
		if err == nil {
			break
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		if attempt+1 >= maxSlugAttempts {
			return nil, domain.ErrSlugTaken
		}
	}

	s.audit(ctx, location.ID, "location.created", location.ID.String(), map[string]any{"slug": location.Slug})
	s.log.Info("location created", zap.String("location_id", location.ID.String()), zap.String("slug", location.Slug))
	return &location, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Location, error) {
	locationID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	location, err := s.repo.FindByID(ctx, s.db, locationID)
	if err != nil {
		return nil, err
	}
	if location == nil {
		return nil, domain.ErrNotFound
	}
	return location, nil
}

func (s *Service) GetBySlug(ctx context.Context, value string) (*domain.Location, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return nil, domain.ErrNotFound
	}
	location, err := s.repo.FindBySlug(ctx, s.db, value)
	if err != nil {
		return nil, err
	}
	if location == nil {
		return nil, domain.ErrNotFound
	}
	return location, nil
}

func (s *Service) List(ctx context.Context, req domain.ListLocationRequest) (domain.ListLocationResponse, error) {
	filter := domain.ListFilter{
		Status: strings.TrimSpace(req.Status),
		Name:   strings.TrimSpace(req.Name),
	}
	if filter.Status != "" && !validStatus(filter.Status) {
		return domain.ListLocationResponse{}, domain.ErrInvalidStatus
	}
	if req.StaffUserID != "" {
		userID, err := parseID(req.StaffUserID)
		if err != nil {
			return domain.ListLocationResponse{}, err
		}
		filter.StaffUserID = userID
	}

	items, err := s.repo.List(ctx, s.db, filter, req.Pagination)
	if err != nil {
		return domain.ListLocationResponse{}, err
	}
	items, pageInfo := pagination.BuildCursorPageInfo(items, req.Limit(), func(l *domain.Location) pagination.Cursor {
		return pagination.Cursor{ID: int64(l.ID), CreatedAt: l.CreatedAt}
	})

	locations := make([]domain.Location, 0, len(items))
	for _, item := range items {
		locations = append(locations, *item)
	}
	return domain.ListLocationResponse{PageInfo: pageInfo, Locations: locations}, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateLocationRequest) (*domain.Location, error) {
	location, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		fields["name"] = name
	}
	if req.Email != nil {
		emailAddr, err := normalizeEmail(*req.Email)
		if err != nil {
			return nil, err
		}
		fields["email"] = emailAddr
	}
	if req.Phone != nil {
		fields["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		fields["address"] = strings.TrimSpace(*req.Address)
	}
	if req.Timezone != nil {
		tz, err := normalizeTimezone(*req.Timezone)
		if err != nil {
			return nil, err
		}
		fields["timezone"] = tz
	}
	if req.Currency != nil {
		currency, err := normalizeCurrency(*req.Currency)
		if err != nil {
			return nil, err
		}
		fields["currency"] = currency
	}
	if req.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*req.Status))
		if !validStatus(status) {
			return nil, domain.ErrInvalidStatus
		}
		fields["status"] = status
	}
	if req.StripeAccountID != nil {
		if v := strings.TrimSpace(*req.StripeAccountID); v != "" {
			fields["stripe_account_id"] = v
		} else {
			fields["stripe_account_id"] = nil
		}
	}
	if req.Metadata != nil {
		fields["metadata"] = datatypes.JSONMap(req.Metadata)
	}
	if len(fields) == 0 {
		return location, nil
	}
	fields["updated_at"] = s.clock.Now().UTC()

	if err := s.repo.UpdateFields(ctx, s.db, location.ID, fields); err != nil {
		return nil, err
	}

	changed := make([]string, 0, len(fields))
	for key := range fields {
		if key != "updated_at" {
			changed = append(changed, key)
		}
	}
	s.audit(ctx, location.ID, "location.updated", location.ID.String(), map[string]any{"fields": changed})
	return s.Get(ctx, id)
}

func (s *Service) AddStaff(ctx context.Context, locationID string, req domain.AddStaffRequest) (*domain.LocationStaff, error) {
	location, err := s.Get(ctx, locationID)
	if err != nil {
		return nil, err
	}
	userID, err := parseID(req.UserID)
	if err != nil {
		return nil, err
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if !validRole(role) {
		return nil, domain.ErrInvalidRole
	}

	var staff *domain.LocationStaff
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindStaff(ctx, tx, location.ID, userID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Role == domain.StaffOwner && role != domain.StaffOwner {
			if err := s.ensureAnotherOwner(ctx, tx, location.ID); err != nil {
				return err
			}
		}
		staff = &domain.LocationStaff{
			LocationID: location.ID,
			UserID:     userID,
			Role:       role,
			CreatedAt:  s.clock.Now().UTC(),
		}
		if existing != nil {
			staff.CreatedAt = existing.CreatedAt
		}
		return s.repo.UpsertStaff(ctx, tx, staff)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, location.ID, "location.staff_added", userID.String(), map[string]any{"role": role})
	return staff, nil
}

func (s *Service) RemoveStaff(ctx context.Context, locationID, userID string) error {
	location, err := s.Get(ctx, locationID)
	if err != nil {
		return err
	}
	uid, err := parseID(userID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindStaff(ctx, tx, location.ID, uid)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrStaffNotFound
		}
		if existing.Role == domain.StaffOwner {
			if err := s.ensureAnotherOwner(ctx, tx, location.ID); err != nil {
				return err
			}
		}
		_, err = s.repo.DeleteStaff(ctx, tx, location.ID, uid)
		return err
	})
	if err != nil {
		return err
	}

	s.audit(ctx, location.ID, "location.staff_removed", uid.String(), nil)
	return nil
}

func (s *Service) ListStaff(ctx context.Context, locationID string) ([]domain.LocationStaff, error) {
	location, err := s.Get(ctx, locationID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListStaff(ctx, s.db, location.ID)
}

func (s *Service) ensureAnotherOwner(ctx context.Context, tx *gorm.DB, locationID snowflake.ID) error {
	owners, err := s.repo.CountOwners(ctx, tx, locationID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return domain.ErrLastOwner
	}
	return nil
}

// uniqueSlug returns base, or base-N with the lowest free N starting at 2.
func (s *Service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "location"
	}
	taken, err := s.repo.SlugsWithPrefix(ctx, s.db, base)
	if err != nil {
		return "", err
	}
	used := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		used[t] = struct{}{}
	}
	if _, ok := used[base]; !ok {
		return base, nil
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if _, ok := used[candidate]; !ok {
			return candidate, nil
		}
	}
}

func (s *Service) audit(ctx context.Context, locationID snowflake.ID, action, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetType := "location"
	if strings.HasPrefix(action, "location.staff") {
		targetType = "user"
	}
	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		LocationID: locationID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
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

func normalizeEmail(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", nil
	}
	if _, err := mail.ParseAddress(value); err != nil {
		return "", domain.ErrInvalidEmail
	}
	return value, nil
}

func normalizeTimezone(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "UTC", nil
	}
	if _, err := time.LoadLocation(value); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidTimezone, value)
	}
	return value, nil
}

func normalizeCurrency(value string) (string, error) {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return "USD", nil
	}
	if len(value) != 3 {
		return "", domain.ErrInvalidCurrency
	}
	for _, r := range value {
		if r < 'A' || r > 'Z' {
			return "", domain.ErrInvalidCurrency
		}
	}
	return value, nil
}

func validStatus(status string) bool {
	return status == domain.StatusActive || status == domain.StatusInactive
}

func validRole(role string) bool {
	switch role {
	case domain.StaffOwner, domain.StaffAdmin, domain.StaffStaff:
		return true
	}
	return false
}
