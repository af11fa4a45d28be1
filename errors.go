package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation indicates the request failed input validation.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials indicates an unknown account or wrong password.
	// The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotVerified indicates login was refused pending email
	// verification. Not a credential failure; no limiter failure is recorded.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrRateLimited indicates the identifier exhausted its attempt budget or
	// is locked out.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidOrExpiredToken indicates a verification or reset token is
	// unknown, already used, or past its expiry.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrInvalidToken indicates a session token failed verification, or its
	// identity record no longer exists.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrIdentityNotFound indicates no identity matches the given key.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrStoreUnavailable indicates a credential operation failed closed on a
	// storage error. The write must not be assumed to have happened.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady indicates the engine was not built through Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ValidationError reports which field failed validation and why. It matches
// ErrValidation via errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RateLimitedError carries the instant at which the identifier may retry. It
// matches ErrRateLimited via errors.Is.
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited until %s", e.ResetAt.Format(time.RFC3339))
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
