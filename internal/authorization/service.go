package authorization

import "context"

// Service decides whether an actor may perform an action inside a location.
// Actors are "user:<id>" or "service".
type Service interface {
	Authorize(ctx context.Context, actor string, locationID string, object string, action string) error
	// Role returns the actor's role name at the location without enforcing anything.
	Role(ctx context.Context, actor string, locationID string) (string, error)
}
