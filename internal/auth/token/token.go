// Package token issues and verifies the HMAC-signed JWTs used by the API.
package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/config"
	"go.uber.org/zap"
)

type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
	TypeReset   Type = "reset"
	TypeService Type = "service"
)

// RoleService marks service-role tokens used by internal callers and cron hooks.
const RoleService = "service_role"

var (
	ErrInvalidToken = errors.New("invalid_token")
	ErrWrongType    = errors.New("wrong_token_type")
)

type Claims struct {
	UserID      string `json:"uid,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
	TokenType   Type   `json:"typ"`
	Fingerprint string `json:"fp,omitempty"`
	jwt.RegisteredClaims
}

// IsService reports whether the claims came from a service-role token.
func (c *Claims) IsService() bool {
	return c != nil && c.Role == RoleService && c.TokenType == TypeService
}

type Pair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Subject is the user a token is issued for.
type Subject struct {
	UserID string
	Email  string
	Role   string
}

type Manager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	serviceTTL time.Duration
	clock      clock.Clock
}

func NewManager(cfg config.Config, clk clock.Clock, log *zap.Logger) (*Manager, error) {
	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		if cfg.IsProduction() {
			return nil, errors.New("AUTH_JWT_SECRET is required in production")
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		log.Warn("AUTH_JWT_SECRET not set, using an ephemeral signing key")
	}
	return &Manager{
		secret:     secret,
		issuer:     cfg.Auth.Issuer,
		accessTTL:  cfg.Auth.AccessTokenTTL,
		refreshTTL: cfg.Auth.RefreshTokenTTL,
		resetTTL:   cfg.Auth.ResetTokenTTL,
		serviceTTL: cfg.Auth.ServiceTokenTTL,
		clock:      clk,
	}, nil
}

func (m *Manager) IssuePair(sub Subject) (Pair, error) {
	access, expiresAt, err := m.issue(sub, TypeAccess, m.accessTTL, "")
	if err != nil {
		return Pair{}, err
	}
	refresh, _, err := m.issue(sub, TypeRefresh, m.refreshTTL, "")
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}

// IssueReset binds the token to a fingerprint of the current password hash
// so it stops working once the password changes.
func (m *Manager) IssueReset(sub Subject, fingerprint string) (string, time.Time, error) {
	return m.issue(sub, TypeReset, m.resetTTL, fingerprint)
}

func (m *Manager) IssueService(subject string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	if ttl <= 0 {
		ttl = m.serviceTTL
	}
	now := m.clock.Now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Role:      RoleService,
		TokenType: TypeService,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign service token: %w", err)
	}
	return signed, expiresAt, nil
}

func (m *Manager) issue(sub Subject, typ Type, ttl time.Duration, fingerprint string) (string, time.Time, error) {
	now := m.clock.Now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID:      sub.UserID,
		Email:       sub.Email,
		Role:        sub.Role,
		TokenType:   typ,
		Fingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, issuer and expiry. Only HMAC algorithms are accepted.
func (m *Manager) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock.Now),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyType is Verify plus a token type check.
func (m *Manager) VerifyType(raw string, typ Type) (*Claims, error) {
	claims, err := m.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != typ {
		return nil, ErrWrongType
	}
	return claims, nil
}
