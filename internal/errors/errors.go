package errors

import (
	"errors"
	"fmt"
)

// Common error types for the portal session client
var (
	// Credential validation errors (raised before any network call)
	ErrMissingPhoneNumber = errors.New("phone number is required for admin login")
	ErrMissingStaffID     = errors.New("staff ID is required for staff login")
	ErrMissingUsername    = errors.New("username is required")
	ErrMissingPassword    = errors.New("password is required")
	ErrUnknownLoginType   = errors.New("unknown login type")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrOTPRejected        = errors.New("OTP code rejected")

	// Token errors
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrNoRefreshToken  = errors.New("no refresh token present")
	ErrRefreshRejected = errors.New("refresh token rejected")

	// Session errors
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionInactive = errors.New("session ended through inactivity")

	// Transport errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("server unavailable")

	// Monitor errors
	ErrMonitorClosed = errors.New("monitor closed")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
