// Package account defines the identity record owned by the credential store
// and the narrow storage contract backends must satisfy.
//
// Backends live elsewhere (internal/stores); this package holds only the
// model, the interface, and the sentinel errors all backends must return, so
// that neither the root package nor a backend imports the other.
package account

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no identity matches the given key.
	ErrNotFound = errors.New("identity not found")
	// ErrDuplicateEmail indicates the normalized email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrTokenInvalid indicates a single-use token is unknown, already
	// consumed, or past its expiry.
	ErrTokenInvalid = errors.New("invalid or expired token")
	// ErrUnavailable indicates the backing store could not be reached.
	// Backends wrap it with the underlying cause.
	ErrUnavailable = errors.New("identity store unavailable")
)

// Identity is one registered principal. Email is stored normalized
// (lowercased, trimmed) and is unique across all identities. EmployeeID is
// assigned when the email is verified and is empty before that.
type Identity struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmployeeID    string    `json:"employee_id,omitempty"`
	PasswordHash  string    `json:"password_hash"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store is the persistence contract for identities and their single-use
// tokens. Implementations must guarantee:
//
//   - Create fails with ErrDuplicateEmail when the normalized email exists,
//     case-insensitively.
//   - At most one live verification token and one live reset token per
//     identity; Set* calls supersede any prior live token.
//   - Consume* is single-use: concurrent calls with the same token hash must
//     not both succeed.
//
// Tokens are indexed by their SHA-256 hash; plaintext tokens are never
// persisted. All methods honor ctx cancellation and return ErrUnavailable
// (wrapped) on infrastructure failure.
type Store interface {
	Create(ctx context.Context, identity Identity) error
	GetByID(ctx context.Context, id string) (Identity, error)
	GetByEmail(ctx context.Context, email string) (Identity, error)
	GetByEmployeeID(ctx context.Context, employeeID string) (Identity, error)
	UpdatePasswordHash(ctx context.Context, id, newHash string) error

	SetVerificationToken(ctx context.Context, id string, tokenHash [32]byte, expiresAt time.Time) error
	ConsumeVerificationToken(ctx context.Context, tokenHash [32]byte, employeeID string, now time.Time) (Identity, error)

	SetResetToken(ctx context.Context, id string, tokenHash [32]byte, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash [32]byte, newHash string, now time.Time) (Identity, error)
}
