package domain

import (
	"context"
	"time"

	"github.com/monstrox/monstro/internal/auth/token"
)

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	AvatarURL *string `json:"avatar_url"`
}

type AuthResult struct {
	User   User       `json:"user"`
	Tokens token.Pair `json:"tokens"`
}

type ServiceToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResult, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*token.Pair, error)
	// ForgotPassword never reveals whether the email exists.
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken string, newPassword string) error
	Me(ctx context.Context, userID string) (*User, error)
	UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*User, error)
	IssueServiceToken(ctx context.Context, subject string, ttl time.Duration) (*ServiceToken, error)
	Verify(ctx context.Context, rawToken string) (*token.Claims, error)
}
