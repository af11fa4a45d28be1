// Package jwt signs and verifies the stateless bearer session tokens issued
// after a successful signup, login, or password reset.
//
// Tokens are HS256-signed JWTs carrying subject (identity id), email, a fixed
// issuer, issuedAt, and expiresAt. Verification is fully offline: no store is
// consulted, and every failure mode — bad signature, wrong issuer, expiry —
// collapses into the single [ErrInvalidToken] so callers cannot leak why a
// token was rejected. The wrapped cause stays available for internal audit.
//
// # What this package must NOT do
//
//   - Persist tokens or any server-side session state.
//   - Expose the signing secret after construction.
//   - Distinguish verification failures in its public error surface.
package jwt
