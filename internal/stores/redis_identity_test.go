package stores

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/callvault/authcore/internal"
	"github.com/callvault/authcore/internal/account"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func testIdentity(id, email string) account.Identity {
	now := time.Now().UTC()
	return account.Identity{
		ID:           id,
		Email:        email,
		PasswordHash: "$argon2id$fake",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestRedisIdentityCreateAndLookup(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisIdentityStore(client, "")
	ctx := context.Background()

	if err := store.Create(ctx, testIdentity("u1", "a@x.com")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := store.GetByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if got.ID != "u1" {
		t.Fatalf("GetByEmail ID = %q, want u1", got.ID)
	}

	if _, err := store.GetByEmail(ctx, "other@x.com"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetByID(ctx, "nope"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisIdentityDuplicateEmail(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisIdentityStore(client, "")
	ctx := context.Background()

	if err := store.Create(ctx, testIdentity("u1", "a@x.com")); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := store.Create(ctx, testIdentity("u2", "a@x.com")); !errors.Is(err, account.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRedisVerificationTokenConsume(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisIdentityStore(client, "")
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Create(ctx, testIdentity("u1", "a@x.com")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	_, hash, err := internal.NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken error: %v", err)
	}

	if err := store.SetVerificationToken(ctx, "u1", hash, now.Add(time.Hour)); err != nil {
		t.Fatalf("SetVerificationToken error: %v", err)
	}

	got, err := store.ConsumeVerificationToken(ctx, hash, "EMP20260830AB12CD", now)
	if err != nil {
		t.Fatalf("ConsumeVerificationToken error: %v", err)
	}
	if !got.EmailVerified {
		t.Fatal("identity not marked verified")
	}
	if got.EmployeeID != "EMP20260830AB12CD" {
		t.Fatalf("employee id = %q", got.EmployeeID)
	}

	// Second consume of the same token must fail.
	if _, err := store.ConsumeVerificationToken(ctx, hash, "EMPX", now); !errors.Is(err, account.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid on replay, got %v", err)
	}

	// The employee ID index is live after verification.
	byEmp, err := store.GetByEmployeeID(ctx, "EMP20260830AB12CD")
	if err != nil {
		t.Fatalf("GetByEmployeeID error: %v", err)
	}
	if byEmp.ID != "u1" {
		t.Fatalf("GetByEmployeeID ID = %q", byEmp.ID)
	}
}

func TestRedisVerificationTokenConcurrentConsume(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisIdentityStore(client, "")
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Create(ctx, testIdentity("u1", "a@x.com")); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	_, hash, err := internal.NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken error: %v", err)
	}
	if err := store.SetVerificationToken(ctx, "u1", hash, now.Add(time.Hour)); err != nil {
		t.Fatalf("SetVerificationToken error: %v", err)
	}

	const consumers = 8
	var (
		start     = make(chan struct{})
		wg        sync.WaitGroup
		successes atomic.Int64
	)
	errs := make(chan error, consumers)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := store.ConsumeVerificationToken(ctx, hash, "EMP20260830AB12CD", now); err == nil {
				successes.Add(1)
			} else {
				errs <- err
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	if got := successes.Load(); got != 1 {
		t.Fatalf("successful consumes = %d, want exactly 1", got)
	}
	for err := range errs {
		if !errors.Is(err, account.ErrTokenInvalid) {
			t.Fatalf("losing consumer: got %v, want ErrTokenInvalid", err)
		}
	}

	got, err := store.GetByID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if !got.EmailVerified {
		t.Fatal("winner did not commit the verified state")
	}
}

func TestRedisVerificationTokenSuperseded(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisIdentityStore(client, "")
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Create(ctx, testIdentity("u1", "a@x.com")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	_, oldHash, err := internal.NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken error: %v", err)
	}
	if err := store.SetVerificationToken(ctx, "u1", oldHash, now.Add(time.Hour)); err != nil {
		t.Fatalf("SetVerificationToken error: %v", err)
	}

	_, newHash, err := internal.NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken error: %v", err)
	}
	if err := store.SetVerificationToken(ctx, "u1", newHash, now.Add(time.Hour)); err != nil {
		t.Fatalf("SetVerificationToken error: %v", err)
	}

	if _, err := store.ConsumeVerificationToken(ctx, oldHash, "EMPX", now); !errors.Is(err, account.ErrTokenInvalid) {
		t.Fatalf("expected superseded token to be invalid, got %v", err)
	}
	if _, err := store.ConsumeVerificationToken(ctx, newHash, "EMPY", now); err != nil {
		t.Fatalf("latest token rejected: %v", err)
	}
}

func TestRedisResetTokenConsume(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisIdentityStore(client, "")
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Create(ctx, testIdentity("u1", "a@x.com")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	_, hash, err := internal.NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken error: %v", err)
	}
	if err := store.SetResetToken(ctx, "u1", hash, now.Add(time.Hour)); err != nil {
		t.Fatalf("SetResetToken error: %v", err)
	}

	got, err := store.ConsumeResetToken(ctx, hash, "$argon2id$new", now)
	if err != nil {
		t.Fatalf("ConsumeResetToken error: %v", err)
	}
	if got.PasswordHash != "$argon2id$new" {
		t.Fatalf("password hash not rotated: %q", got.PasswordHash)
	}

	if _, err := store.ConsumeResetToken(ctx, hash, "$argon2id$again", now); !errors.Is(err, account.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid on replay, got %v", err)
	}
}

// scriptFailHook fails the next n consume script invocations so tests can
// observe what a mid-consume infrastructure error leaves behind.
type scriptFailHook struct {
	remaining atomic.Int64
}

func (h *scriptFailHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *scriptFailHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if (cmd.Name() == "evalsha" || cmd.Name() == "eval") && h.remaining.Add(-1) >= 0 {
			return errors.New("injected script failure")
		}
		return next(ctx, cmd)
	}
}

func (h *scriptFailHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisConsumeFailureLeavesTokenLive(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisIdentityStore(client, "")
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Create(ctx, testIdentity("u1", "a@x.com")); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	_, hash, err := internal.NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken error: %v", err)
	}
	if err := store.SetVerificationToken(ctx, "u1", hash, now.Add(time.Hour)); err != nil {
		t.Fatalf("SetVerificationToken error: %v", err)
	}

	hook := &scriptFailHook{}
	hook.remaining.Store(1)
	client.AddHook(hook)

	if _, err := store.ConsumeVerificationToken(ctx, hash, "EMP20260830AB12CD", now); !errors.Is(err, account.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from failed consume, got %v", err)
	}

	// The failed consume must not have half-committed: the identity is
	// still unverified and the same token works on retry.
	got, err := store.GetByID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.EmailVerified {
		t.Fatal("failed consume left a verified identity")
	}

	got, err = store.ConsumeVerificationToken(ctx, hash, "EMP20260830AB12CD", now)
	if err != nil {
		t.Fatalf("retry after failure error: %v", err)
	}
	if !got.EmailVerified {
		t.Fatal("retry did not verify the identity")
	}
}

func TestRedisResetTokenExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisIdentityStore(client, "")
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Create(ctx, testIdentity("u1", "a@x.com")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	_, hash, err := internal.NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken error: %v", err)
	}
	if err := store.SetResetToken(ctx, "u1", hash, now.Add(time.Minute)); err != nil {
		t.Fatalf("SetResetToken error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.ConsumeResetToken(ctx, hash, "$x", now.Add(2*time.Minute)); !errors.Is(err, account.ErrTokenInvalid) {
		t.Fatalf("expected expired token to be invalid, got %v", err)
	}
}

func TestRedisIdentityUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisIdentityStore(client, "")
	ctx := context.Background()

	mr.Close()

	if _, err := store.GetByEmail(ctx, "a@x.com"); !errors.Is(err, account.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := store.Create(ctx, testIdentity("u1", "a@x.com")); !errors.Is(err, account.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
