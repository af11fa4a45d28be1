package authcore

import (
	"errors"
	"time"
)

// Config carries every tuning knob of the engine. Zero values are filled from
// DefaultConfig by the Builder; Validate runs at build time.
type Config struct {
	Token             TokenConfig
	Password          PasswordConfig
	PasswordPolicy    PasswordPolicyConfig
	RateLimit         RateLimitConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	Email             EmailConfig
	Store             StoreConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
	Security          SecurityConfig
}

// TokenConfig configures the session token codec.
type TokenConfig struct {
	// Secret signs session tokens. At least 32 bytes. Process-wide and
	// read-only after initialization; rotation is a redeploy.
	Secret []byte
	// Issuer is the fixed iss claim.
	Issuer string
	// SessionTTL bounds session token validity. Default 7 days.
	SessionTTL time.Duration
	// Leeway tolerates clock skew during verification. Zero by default, so
	// a token past its expiry is rejected outright; at most 2 minutes.
	Leeway time.Duration
}

// PasswordConfig carries the Argon2id cost parameters plus the hashing
// concurrency bound.
type PasswordConfig struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MaxConcurrentHashes bounds in-flight hash computations so a burst of
	// signups cannot starve unrelated requests. Default 2x GOMAXPROCS.
	MaxConcurrentHashes int
}

// PasswordPolicyConfig is the complexity policy applied to new passwords.
// The rule set is configuration, not a hard-coded law.
type PasswordPolicyConfig struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSymbol    bool
}

// RateLimitConfig tunes the brute-force limiter.
type RateLimitConfig struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// EmailVerificationConfig tunes the email verification tokens.
type EmailVerificationConfig struct {
	TokenTTL time.Duration
}

// PasswordResetConfig tunes the password reset tokens.
type PasswordResetConfig struct {
	TokenTTL time.Duration
}

// EmailConfig tunes the asynchronous email dispatcher.
type EmailConfig struct {
	QueueSize    int
	MaxRetries   int
	RetryBackoff time.Duration
}

// StoreConfig bounds storage calls.
type StoreConfig struct {
	// OpTimeout caps each storage operation. The limiter fails open on
	// timeout; credential mutations fail closed.
	OpTimeout time.Duration
	// KeyPrefix namespaces every Redis key.
	KeyPrefix string
}

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metric collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds deployment-wide switches.
type SecurityConfig struct {
	// ProductionMode turns on the Secure cookie flag in the service binary.
	ProductionMode bool
}

// DefaultConfig returns the documented defaults. Token.Secret has no default
// and must be provided.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:     "authcore",
			SessionTTL: 7 * 24 * time.Hour,
			Leeway:     0,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		PasswordPolicy: PasswordPolicyConfig{
			MinLength:        6,
			RequireUppercase: true,
			RequireLowercase: true,
			RequireDigit:     true,
			RequireSymbol:    true,
		},
		RateLimit: RateLimitConfig{
			MaxAttempts:   5,
			Window:        15 * time.Minute,
			BlockDuration: time.Hour,
		},
		EmailVerification: EmailVerificationConfig{
			TokenTTL: 24 * time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: time.Hour,
		},
		Email: EmailConfig{
			QueueSize:    64,
			MaxRetries:   2,
			RetryBackoff: 2 * time.Second,
		},
		Store: StoreConfig{
			OpTimeout: 3 * time.Second,
			KeyPrefix: "ac",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if len(c.Token.Secret) < 32 {
		return errors.New("token secret must be at least 32 bytes")
	}
	if c.Token.Issuer == "" {
		return errors.New("token issuer required")
	}
	if c.Token.SessionTTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if c.RateLimit.MaxAttempts <= 0 {
		return errors.New("rate limit max attempts must be positive")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.BlockDuration <= 0 {
		return errors.New("rate limit window and block duration must be positive")
	}
	if c.PasswordPolicy.MinLength < 1 {
		return errors.New("password policy min length must be at least 1")
	}
	if c.EmailVerification.TokenTTL <= 0 {
		return errors.New("email verification token ttl must be positive")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("password reset token ttl must be positive")
	}
	if c.Store.OpTimeout <= 0 {
		return errors.New("store op timeout must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
