package email

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidInput = errors.New("email: invalid input")
	ErrSendFailed   = errors.New("email: send failed")
)

// Sender delivers the engine's transactional messages. Token values arrive in
// plaintext; implementations embed them in links and must never log or
// persist them.
type Sender interface {
	SendVerificationEmail(ctx context.Context, to, token string, ttl time.Duration) error
	SendPasswordResetEmail(ctx context.Context, to, token string, ttl time.Duration) error
	SendWelcomeEmail(ctx context.Context, to, employeeID string) error
}

// NoOpSender discards every message.
type NoOpSender struct{}

func (NoOpSender) SendVerificationEmail(context.Context, string, string, time.Duration) error {
	return nil
}

func (NoOpSender) SendPasswordResetEmail(context.Context, string, string, time.Duration) error {
	return nil
}

func (NoOpSender) SendWelcomeEmail(context.Context, string, string) error {
	return nil
}
