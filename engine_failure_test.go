package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/callvault/authcore/internal/rate"
	"github.com/callvault/authcore/internal/stores"
)

// brokenAttemptStore fails every operation, simulating an unreachable
// limiter backend.
type brokenAttemptStore struct{}

var errAttemptStoreDown = errors.New("attempt store down")

func (brokenAttemptStore) Get(context.Context, string) (rate.Window, bool, error) {
	return rate.Window{}, false, errAttemptStoreDown
}

func (brokenAttemptStore) Put(context.Context, rate.Window, time.Duration) error {
	return errAttemptStoreDown
}

func (brokenAttemptStore) Delete(context.Context, ...string) error {
	return errAttemptStoreDown
}

func (brokenAttemptStore) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, errAttemptStoreDown
}

// brokenIdentityStore fails every operation, simulating an unreachable
// credential backend.
type brokenIdentityStore struct{}

var errIdentityStoreDown = errors.New("identity store down")

func (brokenIdentityStore) Create(context.Context, Identity) error { return errIdentityStoreDown }
func (brokenIdentityStore) GetByID(context.Context, string) (Identity, error) {
	return Identity{}, errIdentityStoreDown
}
func (brokenIdentityStore) GetByEmail(context.Context, string) (Identity, error) {
	return Identity{}, errIdentityStoreDown
}
func (brokenIdentityStore) GetByEmployeeID(context.Context, string) (Identity, error) {
	return Identity{}, errIdentityStoreDown
}
func (brokenIdentityStore) UpdatePasswordHash(context.Context, string, string) error {
	return errIdentityStoreDown
}
func (brokenIdentityStore) SetVerificationToken(context.Context, string, [32]byte, time.Time) error {
	return errIdentityStoreDown
}
func (brokenIdentityStore) ConsumeVerificationToken(context.Context, [32]byte, string, time.Time) (Identity, error) {
	return Identity{}, errIdentityStoreDown
}
func (brokenIdentityStore) SetResetToken(context.Context, string, [32]byte, time.Time) error {
	return errIdentityStoreDown
}
func (brokenIdentityStore) ConsumeResetToken(context.Context, [32]byte, string, time.Time) (Identity, error) {
	return Identity{}, errIdentityStoreDown
}

func TestLimiterFailsOpen(t *testing.T) {
	mailer := newCaptureMailer()
	engine, err := New().
		WithConfig(testConfig()).
		WithMemoryStore().
		WithStores(nil, brokenAttemptStore{}).
		WithEmailSender(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	// Credential checks still run while the limiter backend is down.
	identity := signupVerified(t, engine, mailer, "alice@example.com")
	if identity.ID == "" {
		t.Fatal("expected identity")
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricRateLimitFailOpen] == 0 {
		t.Fatal("fail-open must be counted, not silent")
	}
}

func TestCredentialMutationsFailClosed(t *testing.T) {
	engine, err := New().
		WithConfig(testConfig()).
		WithStores(brokenIdentityStore{}, nil).
		WithMemoryStore().
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	ctx := context.Background()

	if _, err := engine.Signup(ctx, SignupRequest{Email: "alice@example.com", Password: testPassword}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Signup: got %v, want ErrStoreUnavailable", err)
	}
	if _, err := engine.Login(ctx, LoginRequest{Email: "alice@example.com", Password: testPassword}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Login: got %v, want ErrStoreUnavailable", err)
	}
	if err := engine.ForgotPassword(ctx, "alice@example.com"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("ForgotPassword: got %v, want ErrStoreUnavailable", err)
	}
	if err := engine.ResetPassword(ctx, "sometoken", testNewPassword); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("ResetPassword: got %v, want ErrStoreUnavailable", err)
	}
	if _, err := engine.VerifyEmail(ctx, "sometoken"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("VerifyEmail: got %v, want ErrStoreUnavailable", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricStoreUnavailable] == 0 {
		t.Fatal("store failures must be counted")
	}
}

func TestSweepRemovesLapsedWindows(t *testing.T) {
	attempts := stores.NewMemoryAttemptStore()
	engine, err := New().
		WithConfig(testConfig()).
		WithMemoryStore().
		WithStores(nil, attempts).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	ctx := context.Background()

	now := time.Now().UTC()
	stale := rate.Window{
		Identifier:  "acct:stale@example.com",
		Attempts:    3,
		LastAttempt: now.Add(-3 * time.Hour),
		CreatedAt:   now.Add(-3 * time.Hour),
	}
	fresh := rate.Window{
		Identifier:  "acct:fresh@example.com",
		Attempts:    1,
		LastAttempt: now,
		CreatedAt:   now,
	}
	if err := attempts.Put(ctx, stale, 0); err != nil {
		t.Fatalf("Put stale: %v", err)
	}
	if err := attempts.Put(ctx, fresh, 0); err != nil {
		t.Fatalf("Put fresh: %v", err)
	}

	result, err := engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.AttemptWindowsRemoved != 1 {
		t.Fatalf("removed %d windows, want 1", result.AttemptWindowsRemoved)
	}

	if _, found, _ := attempts.Get(ctx, "acct:fresh@example.com"); !found {
		t.Fatal("fresh window must survive the sweep")
	}
	if _, found, _ := attempts.Get(ctx, "acct:stale@example.com"); found {
		t.Fatal("stale window must be swept")
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricSweepRemoved] != 1 {
		t.Fatalf("sweep counter = %d, want 1", snap.Counters[MetricSweepRemoved])
	}
}

func TestSweepReportsBackendError(t *testing.T) {
	engine, err := New().
		WithConfig(testConfig()).
		WithMemoryStore().
		WithStores(nil, brokenAttemptStore{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.Sweep(context.Background()); err == nil {
		t.Fatal("expected sweep error from broken backend")
	}
}
