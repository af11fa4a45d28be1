package authcore

import (
	"time"

	"github.com/callvault/authcore/internal/account"
	"github.com/callvault/authcore/internal/audit"
	"github.com/callvault/authcore/internal/rate"
)

// Identity is one registered principal. See [IdentityStore] for the
// persistence contract.
type Identity = account.Identity

// IdentityStore persists identities and their single-use tokens. The package
// ships two implementations under internal/stores, selected through the
// Builder; custom backends may implement it directly.
type IdentityStore = account.Store

// AttemptWindow is the rate-limit state for one identifier.
type AttemptWindow = rate.Window

// AttemptStore persists attempt windows for the rate limiter.
type AttemptStore = rate.Store

// AuditEvent is the structured record emitted for every flow outcome.
type AuditEvent = audit.Event

// AuditSink receives audit events. Emission is asynchronous; a slow sink
// cannot stall a flow.
type AuditSink = audit.Sink

// SignupRequest carries the inputs of the signup flow.
type SignupRequest struct {
	Email    string
	Password string
}

// SignupResult is returned on successful signup. The session token is issued
// immediately; the identity stays unverified until VerifyEmail.
type SignupResult struct {
	Identity     Identity
	SessionToken string
	ExpiresAt    time.Time
}

// LoginRequest identifies the account by email or employee ID. Exactly one of
// the two should be set; when both are set the email wins.
type LoginRequest struct {
	Email      string
	EmployeeID string
	Password   string
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Identity     Identity
	SessionToken string
	ExpiresAt    time.Time
}

// VerifyEmailResult reports the identity whose email was verified and the
// employee ID minted for it.
type VerifyEmailResult struct {
	Email      string
	EmployeeID string
}

// Session is the authoritative view of a verified session token, re-fetched
// from the identity store on every validation.
type Session struct {
	IdentityID    string
	Email         string
	EmployeeID    string
	EmailVerified bool
	ExpiresAt     time.Time
}

// SweepResult reports what a housekeeping pass removed.
type SweepResult struct {
	AttemptWindowsRemoved int
}
