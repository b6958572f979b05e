package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateMemberRequest struct {
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	Gender    string     `json:"gender"`
	DOB       *time.Time `json:"dob"`
}

type UpdateProfileRequest struct {
	FirstName *string    `json:"first_name"`
	LastName  *string    `json:"last_name"`
	Phone     *string    `json:"phone"`
	Gender    *string    `json:"gender"`
	DOB       *time.Time `json:"dob"`
	AvatarURL *string    `json:"avatar_url"`
}

type ListMemberRequest struct {
	pagination.Pagination
	Status string `form:"status"`
	Query  string `form:"q"`
}

type ListMemberResponse struct {
	pagination.PageInfo
	Members []MemberSummary `json:"members"`
}

type RegisterPushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type Service interface {
	// ProvisionForUser creates the member profile for a new user inside the
	// caller's transaction.
	ProvisionForUser(ctx context.Context, tx *gorm.DB, user authdomain.User) error
	CreateForUser(ctx context.Context, user authdomain.User) (*Member, error)
	// Create adds a walk-in member without a login and joins them to the location.
	Create(ctx context.Context, locationID string, req CreateMemberRequest) (*Member, error)
	Get(ctx context.Context, id string) (*Member, error)
	GetByUserID(ctx context.Context, userID string) (*Member, error)
	UpdateProfile(ctx context.Context, id string, req UpdateProfileRequest) (*Member, error)
	SetStripeCustomer(ctx context.Context, id snowflake.ID, customerID string) error
	SetPaymentMethod(ctx context.Context, id snowflake.ID, paymentMethodID string) error

	JoinLocation(ctx context.Context, memberID, locationID string) (*MemberLocation, error)
	GetMembership(ctx context.Context, locationID, memberID snowflake.ID) (*MemberLocation, error)
	ListByLocation(ctx context.Context, locationID string, req ListMemberRequest) (ListMemberResponse, error)
	Archive(ctx context.Context, locationID, memberID string) error
	// AddPoints returns the new balance.
	AddPoints(ctx context.Context, locationID, memberID snowflake.ID, delta int64) (int64, error)

	RegisterPushToken(ctx context.Context, userID string, req RegisterPushTokenRequest) (*PushToken, error)
	ListPushTokens(ctx context.Context, userID string) ([]PushToken, error)
	PushTokensForUser(ctx context.Context, userID string) ([]string, error)
	ForgetPushToken(ctx context.Context, token string) error
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidPushToken = errors.New("invalid_push_token")
	ErrInvalidPlatform  = errors.New("invalid_platform")
	ErrNotFound         = errors.New("member_not_found")
	ErrNotMember        = errors.New("not_a_member_of_location")
	ErrLocationInactive = errors.New("location_inactive")
	ErrAlreadyExists    = errors.New("member_already_exists")
)
