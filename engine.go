package authcore

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/semaphore"

	"github.com/callvault/authcore/email"
	"github.com/callvault/authcore/internal/account"
	"github.com/callvault/authcore/internal/audit"
	"github.com/callvault/authcore/internal/rate"
	"github.com/callvault/authcore/jwt"
	"github.com/callvault/authcore/password"
)

const (
	auditSignup              = "signup"
	auditLogin               = "login"
	auditRateLimited         = "rate_limited"
	auditRateLimitFailOpen   = "rate_limit_fail_open"
	auditLockout             = "lockout_triggered"
	auditVerificationRequest = "verification_requested"
	auditVerifyEmail         = "verify_email"
	auditForgotPassword      = "forgot_password"
	auditResetPassword       = "reset_password"
	auditEnumerationProbe    = "enumeration_probe"
	auditSessionRejected     = "session_rejected"
	auditEmailGiveUp         = "email_delivery_abandoned"
	auditSweep               = "sweep"
)

// Engine composes the hasher, token codec, rate limiter, and stores into the
// account security flows. Configure through the Builder; all methods are safe
// for concurrent use.
type Engine struct {
	config     Config
	identities IdentityStore
	limiter    *rate.Limiter
	hasher     *password.Argon2
	hashSem    *semaphore.Weighted
	codec      *jwt.Manager
	mailer     *email.Dispatcher
	audit      *audit.Dispatcher
	metrics    *Metrics
}

// Close flushes the audit and email queues. The engine must not be used
// afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mailer.Close()
	e.audit.Close()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// EmailDropped reports email jobs discarded because the queue was full.
func (e *Engine) EmailDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.mailer.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, identityID, emailAddr string, failure error, metadata map[string]string) {
	event := audit.Event{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		IdentityID: identityID,
		Email:      emailAddr,
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) onLimiterFailOpen(identifier string, err error) {
	e.metricInc(MetricRateLimitFailOpen)
	e.emitAudit(context.Background(), auditRateLimitFailOpen, false, "", "", err,
		map[string]string{"identifier": identifier})
}

func (e *Engine) onEmailGiveUp(to string, err error) {
	e.emitAudit(context.Background(), auditEmailGiveUp, false, "", to, err, nil)
}

// storeCtx bounds one storage operation.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Store.OpTimeout)
}

// hashPassword runs the Argon2id computation under the concurrency bound.
func (e *Engine) hashPassword(ctx context.Context, plaintext string) (string, error) {
	if err := e.hashSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer e.hashSem.Release(1)

	start := time.Now()
	digest, err := e.hasher.Hash(plaintext)
	e.metrics.Observe(MetricHashLatency, time.Since(start))
	return digest, err
}

// verifyPassword runs the Argon2id verification under the concurrency bound.
// A malformed digest fails closed.
func (e *Engine) verifyPassword(ctx context.Context, plaintext, digest string) bool {
	if err := e.hashSem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer e.hashSem.Release(1)

	start := time.Now()
	ok, _ := e.hasher.Verify(plaintext, digest)
	e.metrics.Observe(MetricHashLatency, time.Since(start))
	return ok
}

// burnHash equalizes the timing of a lookup miss with a real password check
// so an unknown account is indistinguishable from a wrong password.
func (e *Engine) burnHash(ctx context.Context, plaintext string) {
	if err := e.hashSem.Acquire(ctx, 1); err != nil {
		return
	}
	defer e.hashSem.Release(1)
	_, _ = e.hasher.Hash(plaintext)
}

func normalizeEmail(emailAddr string) string {
	return strings.ToLower(strings.TrimSpace(emailAddr))
}

func (e *Engine) validateEmail(emailAddr string) error {
	if emailAddr == "" {
		return &ValidationError{Field: "email", Reason: "required"}
	}
	addr, err := mail.ParseAddress(emailAddr)
	if err != nil || addr.Address != emailAddr {
		return &ValidationError{Field: "email", Reason: "invalid format"}
	}
	return nil
}

func (e *Engine) validatePassword(plaintext string) error {
	policy := e.config.PasswordPolicy

	if len(plaintext) < policy.MinLength {
		return &ValidationError{Field: "password", Reason: "too short"}
	}

	var upper, lower, digit, symbol bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	switch {
	case policy.RequireUppercase && !upper:
		return &ValidationError{Field: "password", Reason: "must contain an uppercase letter"}
	case policy.RequireLowercase && !lower:
		return &ValidationError{Field: "password", Reason: "must contain a lowercase letter"}
	case policy.RequireDigit && !digit:
		return &ValidationError{Field: "password", Reason: "must contain a digit"}
	case policy.RequireSymbol && !symbol:
		return &ValidationError{Field: "password", Reason: "must contain a symbol"}
	}
	return nil
}

// mapStoreError classifies identity-store failures for callers. Anything that
// is not a typed domain error is a storage failure and fails closed.
func (e *Engine) mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, account.ErrNotFound):
		return ErrIdentityNotFound
	case errors.Is(err, account.ErrDuplicateEmail):
		return ErrDuplicateEmail
	case errors.Is(err, account.ErrTokenInvalid):
		return ErrInvalidOrExpiredToken
	default:
		e.metricInc(MetricStoreUnavailable)
		return ErrStoreUnavailable
	}
}

// limiterKeys returns the identifier keys tracked for one flow attempt: the
// client IP (when known) and the presented account identifier.
func limiterKeys(ctx context.Context, accountKey string) []string {
	keys := make([]string, 0, 2)
	if ip := clientIPFromContext(ctx); ip != "" {
		keys = append(keys, "ip:"+ip)
	}
	if accountKey != "" {
		keys = append(keys, "acct:"+accountKey)
	}
	return keys
}

// checkLimiter gates a flow on every identifier key. The strictest answer
// wins: any denied key denies the attempt.
func (e *Engine) checkLimiter(ctx context.Context, keys []string) error {
	for _, key := range keys {
		d := e.limiter.Check(ctx, key)
		if !d.Allowed {
			e.metricInc(MetricRateLimited)
			e.emitAudit(ctx, auditRateLimited, false, "", "", ErrRateLimited,
				map[string]string{"identifier": key})
			return &RateLimitedError{ResetAt: d.ResetAt}
		}
	}
	return nil
}

func (e *Engine) recordFailure(ctx context.Context, keys []string) {
	for _, key := range keys {
		if locked := e.limiter.RecordFailure(ctx, key); locked {
			e.metricInc(MetricLockoutTriggered)
			e.emitAudit(ctx, auditLockout, false, "", "", ErrRateLimited,
				map[string]string{"identifier": key})
		}
	}
}

func (e *Engine) recordSuccess(ctx context.Context, keys []string) {
	e.limiter.RecordSuccess(ctx, keys...)
}
