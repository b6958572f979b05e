package authorization

import "errors"

var (
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidActor    = errors.New("invalid_actor")
	ErrInvalidLocation = errors.New("invalid_location")
	ErrInvalidObject   = errors.New("invalid_object")
	ErrInvalidAction   = errors.New("invalid_action")
)
