package rate

import (
	"context"
	"time"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// Window is the attempt-tracking state for one identifier. LockedUntil is the
// zero time unless a lockout is active. Exactly one window is authoritative
// per identifier at a time.
type Window struct {
	Identifier  string    `json:"identifier"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt"`
	LockedUntil time.Time `json:"locked_until,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists attempt windows keyed by identifier. Get returns found=false
// for an unknown identifier. Implementations wrap infrastructure failures
// with ErrStoreUnavailable. ttl on Put is a retention hint only; correctness
// never depends on the store expiring rows, because expiry is evaluated on
// read.
type Store interface {
	Get(ctx context.Context, identifier string) (Window, bool, error)
	Put(ctx context.Context, w Window, ttl time.Duration) error
	Delete(ctx context.Context, identifiers ...string) error
	PurgeExpired(ctx context.Context, olderThan time.Time) (int, error)
}

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter enforces a per-identifier attempt budget with a temporary lockout.
//
// The window is sliding-by-reset, not a sliding log: once LastAttempt falls
// outside Config.Window the count resets to zero on the next check, rather
// than decaying incrementally. That is a deliberate approximation. Updates
// are read-then-write; concurrent requests for one identifier may under- or
// over-count slightly, but a live lockout is re-read on every call and can
// never be bypassed by such a race.
type Limiter struct {
	store Store
	cfg   Config

	// Now is the clock; tests override it.
	Now func() time.Time

	// OnFailOpen is invoked when a store failure forces Check to allow the
	// request. It is non-nil after New.
	OnFailOpen func(identifier string, err error)
}

// New creates a Limiter over the given attempt store.
func New(store Store, cfg Config) *Limiter {
	return &Limiter{
		store:      store,
		cfg:        cfg,
		Now:        time.Now,
		OnFailOpen: func(string, error) {},
	}
}

func (l *Limiter) retention() time.Duration {
	return l.cfg.Window + l.cfg.BlockDuration
}

// Check reports whether the identifier may attempt an operation. A missing
// window is created lazily at zero attempts. On store failure Check fails
// open: the request is allowed and OnFailOpen fires — a storage outage must
// not turn the limiter into a denial-of-service vector.
func (l *Limiter) Check(ctx context.Context, identifier string) Decision {
	now := l.Now()
	open := Decision{Allowed: true, Remaining: l.cfg.MaxAttempts, ResetAt: now.Add(l.cfg.Window)}

	w, found, err := l.store.Get(ctx, identifier)
	if err != nil {
		l.OnFailOpen(identifier, err)
		return open
	}

	if !found {
		w = Window{Identifier: identifier, CreatedAt: now}
		if err := l.store.Put(ctx, w, l.retention()); err != nil {
			l.OnFailOpen(identifier, err)
		}
		return open
	}

	// Lockout is a hard gate regardless of the attempt count.
	if w.LockedUntil.After(now) {
		return Decision{Allowed: false, Remaining: 0, ResetAt: w.LockedUntil}
	}

	// Window expiry resets the count even without an explicit success.
	if now.Sub(w.LastAttempt) > l.cfg.Window {
		if w.Attempts != 0 || !w.LockedUntil.IsZero() {
			w.Attempts = 0
			w.LockedUntil = time.Time{}
			if err := l.store.Put(ctx, w, l.retention()); err != nil {
				l.OnFailOpen(identifier, err)
			}
		}
		return open
	}

	remaining := l.cfg.MaxAttempts - w.Attempts
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   remaining > 0,
		Remaining: remaining,
		ResetAt:   w.LastAttempt.Add(l.cfg.Window),
	}
}

// RecordFailure counts a failed attempt. Reaching Config.MaxAttempts within
// the window sets LockedUntil = now + Config.BlockDuration. Returns true when
// this failure triggered the lockout. Store errors are reported through
// OnFailOpen and otherwise swallowed; accounting is best-effort.
func (l *Limiter) RecordFailure(ctx context.Context, identifier string) bool {
	now := l.Now()

	w, found, err := l.store.Get(ctx, identifier)
	if err != nil {
		l.OnFailOpen(identifier, err)
		return false
	}
	if !found {
		w = Window{Identifier: identifier, CreatedAt: now}
	}

	// An active lockout stays as-is; only lapse of LockedUntil exits it.
	if w.LockedUntil.After(now) {
		return false
	}

	if now.Sub(w.LastAttempt) > l.cfg.Window {
		w.Attempts = 0
		w.LockedUntil = time.Time{}
	}

	w.Attempts++
	w.LastAttempt = now

	locked := false
	if w.Attempts >= l.cfg.MaxAttempts {
		w.LockedUntil = now.Add(l.cfg.BlockDuration)
		locked = true
	}

	if err := l.store.Put(ctx, w, l.retention()); err != nil {
		l.OnFailOpen(identifier, err)
		return false
	}
	return locked
}

// RecordSuccess clears every supplied identifier back to the fresh state. An
// identifier may be tracked under more than one key (client IP and account);
// a success clears them all.
func (l *Limiter) RecordSuccess(ctx context.Context, identifiers ...string) {
	if len(identifiers) == 0 {
		return
	}
	if err := l.store.Delete(ctx, identifiers...); err != nil {
		l.OnFailOpen(identifiers[0], err)
	}
}

// PurgeExpired physically removes windows whose retention has lapsed. Pure
// housekeeping: expiry is evaluated on read, so skipping the sweep never
// affects correctness.
func (l *Limiter) PurgeExpired(ctx context.Context) (int, error) {
	return l.store.PurgeExpired(ctx, l.Now().Add(-l.retention()))
}
