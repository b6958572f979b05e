package domain

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrWeakPassword       = errors.New("password_too_short")
	ErrInvalidName        = errors.New("invalid_name")
	ErrEmailTaken         = errors.New("email_already_registered")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrInvalidToken       = errors.New("invalid_token")
)
