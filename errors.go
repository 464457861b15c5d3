package goOTP

import "errors"

var (
	// ErrMissingSigningSecret is returned by Config.Validate when no JWT secret is configured.
	ErrMissingSigningSecret = errors.New("jwt signing secret is required")
	// ErrUnauthorized is returned when an access token is missing, invalid or bound to a dead session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserNotFound is returned by a Directory for unknown users.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserInactive is returned when a deactivated user tries to authenticate.
	ErrUserInactive = errors.New("account is deactivated")
	// ErrInvalidEmail is returned for malformed email addresses.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrDirectoryUnavailable wraps user directory backend failures.
	ErrDirectoryUnavailable = errors.New("user directory unavailable")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
