package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateAchievementRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Badge       string `json:"badge"`
	Trigger     string `json:"trigger"`
	Requirement int64  `json:"requirement"`
	Points      int64  `json:"points"`
}

type Service interface {
	Create(ctx context.Context, locationID string, req CreateAchievementRequest) (*Achievement, error)
	Get(ctx context.Context, id string) (*Achievement, error)
	// List returns active achievements unless status is "archived" or "all".
	List(ctx context.Context, locationID string, status string) ([]Achievement, error)
	Archive(ctx context.Context, id string) (*Achievement, error)
	ListForMember(ctx context.Context, locationID, memberID string) ([]MemberProgress, error)

	// Evaluate updates the member's progress on every active achievement
	// with the trigger and returns the ones completed by this call.
	Evaluate(ctx context.Context, locationID, memberID snowflake.ID, trigger string) ([]Achievement, error)
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidTrigger     = errors.New("invalid_trigger")
	ErrInvalidRequirement = errors.New("invalid_requirement")
	ErrInvalidPoints      = errors.New("invalid_points")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrNotFound           = errors.New("achievement_not_found")
)

func ValidTrigger(trigger string) bool {
	switch trigger {
	case TriggerCheckInCount, TriggerReservationCount, TriggerPlanSignup, TriggerPointsTotal:
		return true
	}
	return false
}
