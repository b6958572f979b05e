package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/auth/domain"
	"github.com/monstrox/monstro/internal/auth/password"
	"github.com/monstrox/monstro/internal/auth/token"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/config"
	"github.com/monstrox/monstro/internal/email"
	"github.com/monstrox/monstro/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Config   config.Config
	Clock    clock.Clock
	Repo     domain.Repository
	Tokens   *token.Manager
	Emails   email.Dispatcher
	Members  domain.MemberProvisioner `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	appURL   string
	resetTTL time.Duration
	clock    clock.Clock
	repo     domain.Repository
	tokens   *token.Manager
	emails   email.Dispatcher
	members  domain.MemberProvisioner
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("auth.service"),
		genID:    p.GenID,
		appURL:   p.Config.AppURL,
		resetTTL: p.Config.Auth.ResetTokenTTL,
		clock:    p.Clock,
		repo:     p.Repo,
		tokens:   p.Tokens,
		emails:   p.Emails,
		members:  p.Members,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResult, error) {
	emailAddr, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if password.Check(req.Password) != nil {
		return nil, domain.ErrWeakPassword
	}
	firstName := strings.TrimSpace(req.FirstName)
	if firstName == "" {
		return nil, domain.ErrInvalidName
	}

	existing, err := s.repo.FindByEmail(ctx, s.db, emailAddr)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrEmailTaken
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	user := domain.User{
		ID:           s.genID.Generate(),
		Email:        emailAddr,
		PasswordHash: hashed,
		FirstName:    firstName,
		LastName:     strings.TrimSpace(req.LastName),
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &user); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrEmailTaken
			}
			return err
		}
		if s.members != nil {
			return s.members.ProvisionForUser(ctx, tx, user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(subjectOf(user))
	if err != nil {
		return nil, err
	}

	if err := s.emails.Enqueue(ctx, email.Message{
		To:       user.Email,
		Template: email.TemplateWelcome,
		Data:     map[string]any{"first_name": user.FirstName, "app_url": s.appURL},
	}); err != nil {
		s.log.Warn("welcome email not queued", zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	s.log.Info("user registered", zap.String("user_id", user.ID.String()))
	return &domain.AuthResult{User: user, Tokens: pair}, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
	emailAddr, err := normalizeEmail(req.Email)
	if err != nil || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, s.db, emailAddr)
	if err != nil {
		return nil, err
	}
	if user == nil || !password.Verify(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	s.upgradeHash(ctx, user, req.Password)

	pair, err := s.tokens.IssuePair(subjectOf(*user))
	if err != nil {
		return nil, err
	}
	return &domain.AuthResult{User: *user, Tokens: pair}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	claims, err := s.tokens.VerifyType(refreshToken, token.TypeRefresh)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	user, err := s.userFromClaims(ctx, claims)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(subjectOf(*user))
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	normalized, err := normalizeEmail(emailAddr)
	if err != nil {
		return nil
	}
	user, err := s.repo.FindByEmail(ctx, s.db, normalized)
	if err != nil {
		return err
	}
	if user == nil {
		s.log.Debug("password reset requested for unknown email")
		return nil
	}

	raw, _, err := s.tokens.IssueReset(subjectOf(*user), password.Fingerprint(user.PasswordHash))
	if err != nil {
		return err
	}

	resetURL := s.appURL + "/reset-password?token=" + url.QueryEscape(raw)
	return s.emails.Enqueue(ctx, email.Message{
		To:       user.Email,
		Template: email.TemplatePasswordReset,
		Data: map[string]any{
			"first_name": user.FirstName,
			"reset_url":  resetURL,
			"expires_in": humanDuration(s.resetTTL),
		},
	})
}

func (s *Service) ResetPassword(ctx context.Context, resetToken string, newPassword string) error {
	if password.Check(newPassword) != nil {
		return domain.ErrWeakPassword
	}
	claims, err := s.tokens.VerifyType(resetToken, token.TypeReset)
	if err != nil {
		return domain.ErrInvalidToken
	}
	user, err := s.userFromClaims(ctx, claims)
	if err != nil {
		return err
	}
	if claims.Fingerprint != password.Fingerprint(user.PasswordHash) {
		return domain.ErrInvalidToken
	}

	hashed, err := password.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdateFields(ctx, s.db, user.ID, map[string]any{
		"password_hash": hashed,
		"updated_at":    s.clock.Now().UTC(),
	})
}

func (s *Service) Me(ctx context.Context, userID string) (*domain.User, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(userID))
	if err != nil || id == 0 {
		return nil, domain.ErrUserNotFound
	}
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.User, error) {
	user, err := s.Me(ctx, userID)
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
	if req.AvatarURL != nil {
		fields["avatar_url"] = optionalString(*req.AvatarURL)
	}
	if len(fields) == 0 {
		return user, nil
	}
	fields["updated_at"] = s.clock.Now().UTC()

	if err := s.repo.UpdateFields(ctx, s.db, user.ID, fields); err != nil {
		return nil, err
	}
	return s.Me(ctx, userID)
}

func (s *Service) IssueServiceToken(ctx context.Context, subject string, ttl time.Duration) (*domain.ServiceToken, error) {
	raw, expiresAt, err := s.tokens.IssueService(subject, ttl)
	if err != nil {
		return nil, err
	}
	s.log.Info("service token issued", zap.String("subject", strings.TrimSpace(subject)), zap.Time("expires_at", expiresAt))
	return &domain.ServiceToken{Token: raw, ExpiresAt: expiresAt}, nil
}

func (s *Service) Verify(ctx context.Context, rawToken string) (*token.Claims, error) {
	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) userFromClaims(ctx context.Context, claims *token.Claims) (*domain.User, error) {
	user, err := s.Me(ctx, claims.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidToken
	}
	return user, err
}

func subjectOf(user domain.User) token.Subject {
	return token.Subject{UserID: user.ID.String(), Email: user.Email, Role: user.Role}
}

func normalizeEmail(value string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", domain.ErrInvalidEmail
	}
	return trimmed, nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func humanDuration(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d > time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	default:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
}

// upgradeHash re-encodes a stored hash made with older cost settings. The
// login succeeds either way.
func (s *Service) upgradeHash(ctx context.Context, user *domain.User, plain string) {
	if !password.NeedsRehash(user.PasswordHash) {
		return
	}
	hashed, err := password.Hash(plain)
	if err != nil {
		return
	}
	if err := s.repo.UpdateFields(ctx, s.db, user.ID, map[string]any{"password_hash": hashed}); err != nil {
		s.log.Warn("password rehash failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		return
	}
	user.PasswordHash = hashed
}
