// Package authcore is an embeddable account security engine: signup and login
// with Argon2id password hashing, stateless signed session tokens,
// brute-force rate limiting with temporary lockout, and single-use email
// verification and password reset tokens.
//
// Build an Engine with the Builder, back it with Redis or the in-memory
// stores, then call the flow methods (Signup, Login, VerifyEmail, ...).
// Every flow is safe for concurrent use.
package authcore
