package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	"github.com/monstrox/monstro/pkg/db/pagination"
)

type CreateSubscriptionRequest struct {
	MemberID string `json:"member_id"`
	PlanID   string `json:"plan_id"`
}

type CreateSubscriptionResponse struct {
	Subscription Subscription          `json:"subscription"`
	Invoice      invoicedomain.Invoice `json:"invoice"`
}

type CancelRequest struct {
	AtPeriodEnd bool `json:"at_period_end"`
}

type ListSubscriptionRequest struct {
	pagination.Pagination
	Status   string `form:"status"`
	MemberID string `form:"member_id"`
}

type ListSubscriptionResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

// RenewResult reports what a renewal run did. Renewed is false for stale or
// duplicate runs.
type RenewResult struct {
	Subscription Subscription           `json:"subscription"`
	Renewed      bool                   `json:"renewed"`
	Canceled     bool                   `json:"canceled"`
	Invoice      *invoicedomain.Invoice `json:"invoice,omitempty"`
}

// Charger collects an invoice off-session with the member's saved payment method.
type Charger interface {
	ChargeInvoice(ctx context.Context, invoiceID string) error
}

type Service interface {
	Create(ctx context.Context, locationID string, req CreateSubscriptionRequest) (*CreateSubscriptionResponse, error)
	Get(ctx context.Context, id string) (*Subscription, error)
	ListByMember(ctx context.Context, memberID string, req ListSubscriptionRequest) (ListSubscriptionResponse, error)
	ListByLocation(ctx context.Context, locationID string, req ListSubscriptionRequest) (ListSubscriptionResponse, error)

	Cancel(ctx context.Context, id string, req CancelRequest) (*Subscription, error)
	Pause(ctx context.Context, id string) (*Subscription, error)
	Resume(ctx context.Context, id string) (*Subscription, error)
	Renew(ctx context.Context, id string, expectedPeriodEnd time.Time) (*RenewResult, error)

	// TransitionIf moves the subscription to to only when it is currently in from.
	TransitionIf(ctx context.Context, id snowflake.ID, from, to string) (bool, error)
	// ListDueForRenewal pages live subscriptions whose period ended before before, in id order after afterID.
	ListDueForRenewal(ctx context.Context, before time.Time, afterID snowflake.ID, limit int) ([]Subscription, error)
	// EnsureRenewalScheduled re-queues the renewal task for the current period.
	EnsureRenewalScheduled(ctx context.Context, sub Subscription) error
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrNotFound          = errors.New("subscription_not_found")
	ErrAlreadySubscribed = errors.New("already_subscribed")
	ErrPlanUnavailable   = errors.New("plan_unavailable")
)
