package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	"github.com/monstrox/monstro/internal/clock"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	"github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/notification"
	"github.com/monstrox/monstro/pkg/db"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const referralAttempts = 3

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Locations locationdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	locations locationdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("member.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		locations: p.Locations,
	}
}

// Provisioner exposes the member service to auth registration.
func Provisioner(svc domain.Service) authdomain.MemberProvisioner {
	return svc
}

// TokenStore exposes push tokens to the notifier.
func TokenStore(svc domain.Service) notification.TokenStore {
	return svc
}

func (s *Service) ProvisionForUser(ctx context.Context, tx *gorm.DB, user authdomain.User) error {
	_, err := s.createForUser(ctx, tx, user)
	return err
}

func (s *Service) CreateForUser(ctx context.Context, user authdomain.User) (*domain.Member, error) {
	var member *domain.Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		member, err = s.createForUser(ctx, tx, user)
		return err
	})
	return member, err
}

func (s *Service) createForUser(ctx context.Context, tx *gorm.DB, user authdomain.User) (*domain.Member, error) {
	if user.ID == 0 {
		return nil, domain.ErrInvalidID
	}
	existing, err := s.repo.FindByUserID(ctx, tx, user.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrAlreadyExists
	}

	userID := user.ID
	now := s.clock.Now().UTC()
	member := &domain.Member{
		ID:        s.genID.Generate(),
		UserID:    &userID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Phone:     user.Phone,
		AvatarURL: user.AvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.insertWithReferral(ctx, tx, member); err != nil {
		return nil, err
	}
	s.log.Info("member provisioned", zap.String("member_id", member.ID.String()), zap.String("user_id", userID.String()))
	return member, nil
}

func (s *Service) Create(ctx context.Context, locationID string, req domain.CreateMemberRequest) (*domain.Member, error) {
	location, err := s.activeLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	firstName := strings.TrimSpace(req.FirstName)
	if firstName == "" {
		return nil, domain.ErrInvalidName
	}
	emailAddr := strings.ToLower(strings.TrimSpace(req.Email))
	if emailAddr != "" {
		if _, err := mail.ParseAddress(emailAddr); err != nil {
			return nil, domain.ErrInvalidEmail
		}
	}

	now := s.clock.Now().UTC()
	member := &domain.Member{
		ID:        s.genID.Generate(),
		FirstName: firstName,
		LastName:  strings.TrimSpace(req.LastName),
		Email:     emailAddr,
		Phone:     optionalString(req.Phone),
		Gender:    optionalString(req.Gender),
		DOB:       req.DOB,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.insertWithReferral(ctx, tx, member); err != nil {
			return err
		}
		return s.repo.InsertMembership(ctx, tx, &domain.MemberLocation{
			MemberID:   member.ID,
			LocationID: location.ID,
			Status:     domain.MembershipActive,
			JoinedAt:   now,
			UpdatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// insertWithReferral retries on referral code collisions.
func (s *Service) insertWithReferral(ctx context.Context, tx *gorm.DB, member *domain.Member) error {
	var err error
	for i := 0; i < referralAttempts; i++ {
		member.ReferralCode = newReferralCode()
		err = tx.Transaction(func(inner *gorm.DB) error {
			return s.repo.Insert(ctx, inner, member)
		})
		if err == nil || !db.IsDuplicateKeyErr(err) {
			return err
		}
		if member.UserID != nil {
			if existing, findErr := s.repo.FindByUserID(ctx, tx, *member.UserID); findErr == nil && existing != nil {
				return domain.ErrAlreadyExists
			}
		}
	}
	return err
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Member, error) {
	memberID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	member, err := s.repo.FindByID(ctx, s.db, memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.ErrNotFound
	}
	return member, nil
}

func (s *Service) GetByUserID(ctx context.Context, userID string) (*domain.Member, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	member, err := s.repo.FindByUserID(ctx, s.db, uid)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.ErrNotFound
	}
	return member, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id string, req domain.UpdateProfileRequest) (*domain.Member, error) {
	member, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if req.FirstName != nil {
		name := strings.TrimSpace(*req.FirstName)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		fields["first_name"] = name
	}
	if req.LastName != nil {
		fields["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.Phone != nil {
		fields["phone"] = optionalString(*req.Phone)
	}
	if req.Gender != nil {
		fields["gender"] = optionalString(*req.Gender)
	}
	if req.DOB != nil {
		dob := req.DOB.UTC()
		fields["dob"] = &dob
	}
	if req.AvatarURL != nil {
		fields["avatar_url"] = optionalString(*req.AvatarURL)
	}
	if len(fields) == 0 {
		return member, nil
	}
	fields["updated_at"] = s.clock.Now().UTC()

	if err := s.repo.UpdateFields(ctx, s.db, member.ID, fields); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) SetStripeCustomer(ctx context.Context, id snowflake.ID, customerID string) error {
	return s.repo.UpdateFields(ctx, s.db, id, map[string]any{
		"stripe_customer_id": optionalString(customerID),
		"updated_at":         s.clock.Now().UTC(),
	})
}

func (s *Service) SetPaymentMethod(ctx context.Context, id snowflake.ID, paymentMethodID string) error {
	return s.repo.UpdateFields(ctx, s.db, id, map[string]any{
		"stripe_payment_method_id": optionalString(paymentMethodID),
		"updated_at":               s.clock.Now().UTC(),
	})
}

// JoinLocation is idempotent. Joining again reactivates an archived membership.
func (s *Service) JoinLocation(ctx context.Context, memberID, locationID string) (*domain.MemberLocation, error) {
	member, err := s.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	location, err := s.activeLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindMembership(ctx, s.db, location.ID, member.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == domain.MembershipActive {
			return existing, nil
		}
		if _, err := s.repo.UpdateMembershipStatus(ctx, s.db, location.ID, member.ID, domain.MembershipActive); err != nil {
			return nil, err
		}
		existing.Status = domain.MembershipActive
		return existing, nil
	}

	now := s.clock.Now().UTC()
	membership := &domain.MemberLocation{
		MemberID:   member.ID,
		LocationID: location.ID,
		Status:     domain.MembershipActive,
		JoinedAt:   now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertMembership(ctx, s.db, membership); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.repo.FindMembership(ctx, s.db, location.ID, member.ID)
		}
		return nil, err
	}
	s.log.Info("member joined location",
		zap.String("member_id", member.ID.String()),
		zap.String("location_id", location.ID.String()),
	)
	return membership, nil
}

func (s *Service) GetMembership(ctx context.Context, locationID, memberID snowflake.ID) (*domain.MemberLocation, error) {
	membership, err := s.repo.FindMembership(ctx, s.db, locationID, memberID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, domain.ErrNotMember
	}
	return membership, nil
}

func (s *Service) ListByLocation(ctx context.Context, locationID string, req domain.ListMemberRequest) (domain.ListMemberResponse, error) {
	lid, err := parseID(locationID)
	if err != nil {
		return domain.ListMemberResponse{}, err
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status != "" && !validMembershipStatus(status) {
		return domain.ListMemberResponse{}, domain.ErrInvalidStatus
	}

	rows, err := s.repo.ListByLocation(ctx, s.db, domain.ListFilter{
		LocationID: lid,
		Status:     status,
		Query:      req.Query,
	}, req.Pagination)
	if err != nil {
		return domain.ListMemberResponse{}, err
	}
	rows, pageInfo := pagination.BuildCursorPageInfo(rows, req.Limit(), func(m domain.MemberSummary) pagination.Cursor {
		return pagination.Cursor{ID: int64(m.ID), CreatedAt: m.CreatedAt}
	})
	if rows == nil {
		rows = []domain.MemberSummary{}
	}
	return domain.ListMemberResponse{PageInfo: pageInfo, Members: rows}, nil
}

func (s *Service) Archive(ctx context.Context, locationID, memberID string) error {
	lid, err := parseID(locationID)
	if err != nil {
		return err
	}
	mid, err := parseID(memberID)
	if err != nil {
		return err
	}
	affected, err := s.repo.UpdateMembershipStatus(ctx, s.db, lid, mid, domain.MembershipArchived)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotMember
	}
	return nil
}

func (s *Service) AddPoints(ctx context.Context, locationID, memberID snowflake.ID, delta int64) (int64, error) {
	affected, err := s.repo.IncrementPoints(ctx, s.db, locationID, memberID, delta)
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, domain.ErrNotMember
	}
	membership, err := s.GetMembership(ctx, locationID, memberID)
	if err != nil {
		return 0, err
	}
	return membership.Points, nil
}

func (s *Service) RegisterPushToken(ctx context.Context, userID string, req domain.RegisterPushTokenRequest) (*domain.PushToken, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	value := strings.TrimSpace(req.Token)
	if value == "" || len(value) > 255 {
		return nil, domain.ErrInvalidPushToken
	}
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	switch platform {
	case domain.PlatformIOS, domain.PlatformAndroid, domain.PlatformWeb:
	default:
		return nil, domain.ErrInvalidPlatform
	}

	now := s.clock.Now().UTC()
	token := &domain.PushToken{
		ID:        s.genID.Generate(),
		UserID:    uid,
		Token:     value,
		Platform:  platform,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertPushToken(ctx, s.db, token); err != nil {
		return nil, err
	}
	return token, nil
}

func (s *Service) ListPushTokens(ctx context.Context, userID string) ([]domain.PushToken, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPushTokens(ctx, s.db, uid)
}

func (s *Service) PushTokensForUser(ctx context.Context, userID string) ([]string, error) {
	tokens, err := s.ListPushTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(tokens))
	for _, t := range tokens {
		values = append(values, t.Token)
	}
	return values, nil
}

func (s *Service) ForgetPushToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return s.repo.DeletePushToken(ctx, s.db, token)
}

func (s *Service) activeLocation(ctx context.Context, locationID string) (*locationdomain.Location, error) {
	location, err := s.locations.Get(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if location.Status != locationdomain.StatusActive {
		return nil, domain.ErrLocationInactive
	}
	return location, nil
}

// newReferralCode takes the tail of a ULID, which is all entropy.
func newReferralCode() string {
	id := ulid.Make().String()
	return id[len(id)-8:]
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func validMembershipStatus(status string) bool {
	switch status {
	case domain.MembershipActive, domain.MembershipInactive, domain.MembershipArchived:
		return true
	}
	return false
}
