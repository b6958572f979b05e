package domain

import (
	"context"
	"errors"

	"github.com/monstrox/monstro/pkg/db/pagination"
)

type CreateLocationRequest struct {
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Phone    string         `json:"phone"`
	Address  string         `json:"address"`
	Timezone string         `json:"timezone"`
	Currency string         `json:"currency"`
	Metadata map[string]any `json:"metadata"`
}

type UpdateLocationRequest struct {
	Name            *string        `json:"name"`
	Email           *string        `json:"email"`
	Phone           *string        `json:"phone"`
	Address         *string        `json:"address"`
	Timezone        *string        `json:"timezone"`
	Currency        *string        `json:"currency"`
	Status          *string        `json:"status"`
	StripeAccountID *string        `json:"stripe_account_id"`
	Metadata        map[string]any `json:"metadata"`
}

type ListLocationRequest struct {
	pagination.Pagination
	// StaffUserID limits the result to locations the user works at.
	StaffUserID string `form:"-"`
	Status      string `form:"status"`
	Name        string `form:"name"`
}

type ListLocationResponse struct {
	pagination.PageInfo
	Locations []Location `json:"locations"`
}

type AddStaffRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type Service interface {
	// Create stores the location and makes creatorID its owner.
	Create(ctx context.Context, creatorID string, req CreateLocationRequest) (*Location, error)
	Get(ctx context.Context, id string) (*Location, error)
	GetBySlug(ctx context.Context, slug string) (*Location, error)
	List(ctx context.Context, req ListLocationRequest) (ListLocationResponse, error)
	Update(ctx context.Context, id string, req UpdateLocationRequest) (*Location, error)
	AddStaff(ctx context.Context, locationID string, req AddStaffRequest) (*LocationStaff, error)
	RemoveStaff(ctx context.Context, locationID, userID string) error
	ListStaff(ctx context.Context, locationID string) ([]LocationStaff, error)
}

var (
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidEmail    = errors.New("invalid_email")
	ErrInvalidTimezone = errors.New("invalid_timezone")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidStatus   = errors.New("invalid_status")
	ErrInvalidRole     = errors.New("invalid_role")
	ErrNotFound        = errors.New("location_not_found")
	ErrStaffNotFound   = errors.New("staff_not_found")
	ErrLastOwner       = errors.New("last_owner")
	ErrSlugTaken       = errors.New("slug_taken")
)
