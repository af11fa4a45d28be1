package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is the single classified verification failure. The wrapped
// detail is for internal logging only and must not reach a caller-visible
// surface.
var ErrInvalidToken = errors.New("invalid session token")

const minSecretBytes = 32

// Config holds the signing parameters. Secret is process-wide, read-only
// after initialization; rotation is a redeploy, not a live code path.
type Config struct {
	Secret     []byte
	Issuer     string
	SessionTTL time.Duration
	Leeway     time.Duration
}

// Manager signs and verifies session tokens. Immutable after NewManager and
// safe for unsynchronized concurrent use.
type Manager struct {
	config Config
}

// SessionClaims is the payload of a session token.
type SessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", minSecretBytes)
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("session TTL must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{config: cfg}, nil
}

// Issue signs a session token for the identity using the configured TTL.
func (m *Manager) Issue(identityID, email string) (string, error) {
	return m.IssueWithTTL(identityID, email, m.config.SessionTTL)
}

// IssueWithTTL signs a session token with an explicit TTL.
func (m *Manager) IssueWithTTL(identityID, email string, ttl time.Duration) (string, error) {
	if identityID == "" {
		return "", errors.New("empty subject")
	}
	if ttl <= 0 {
		ttl = m.config.SessionTTL
	}

	now := time.Now()
	claims := SessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// Verify parses and validates a session token. It rejects bad signatures,
// issuer mismatches, and expired tokens, always as [ErrInvalidToken].
func (m *Manager) Verify(token string) (*SessionClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(
		token,
		&SessionClaims{},
		func(t *jwt.Token) (any, error) {
			return m.config.Secret, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
