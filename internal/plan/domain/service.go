package domain

import (
	"context"
	"errors"
)

type CreatePlanRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Price         int64  `json:"price"`
	Currency      string `json:"currency"`
	Interval      string `json:"interval"`
	IntervalCount int    `json:"interval_count"`
	ClassLimit    *int   `json:"class_limit"`
}

type UpdatePlanRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *int64  `json:"price"`
	ClassLimit  *int    `json:"class_limit"`
}

type Service interface {
	Create(ctx context.Context, locationID string, req CreatePlanRequest) (*Plan, error)
	Get(ctx context.Context, id string) (*Plan, error)
	// List returns active plans when status is empty.
	List(ctx context.Context, locationID string, status string) ([]Plan, error)
	Update(ctx context.Context, id string, req UpdatePlanRequest) (*Plan, error)
	Archive(ctx context.Context, id string) (*Plan, error)
}

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidPrice         = errors.New("invalid_price")
	ErrInvalidInterval      = errors.New("invalid_interval")
	ErrInvalidIntervalCount = errors.New("invalid_interval_count")
	ErrInvalidClassLimit    = errors.New("invalid_class_limit")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrNotFound             = errors.New("plan_not_found")
	ErrArchived             = errors.New("plan_archived")
)
