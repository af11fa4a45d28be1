package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestValidateSessionReflectsStoreState(t *testing.T) {
	engine, mailer := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Signup(ctx, SignupRequest{Email: "alice@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	msg := waitMail(t, mailer.verifications)

	session, err := engine.ValidateSession(ctx, result.SessionToken)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if session.EmailVerified || session.EmployeeID != "" {
		t.Fatal("session must show the unverified record")
	}

	if _, err := engine.VerifyEmail(ctx, msg.Token); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	// Same token, fresh store state: verification is visible immediately.
	session, err = engine.ValidateSession(ctx, result.SessionToken)
	if err != nil {
		t.Fatalf("ValidateSession after verify failed: %v", err)
	}
	if !session.EmailVerified {
		t.Fatal("session must show the verified record")
	}
	if session.EmployeeID == "" {
		t.Fatal("session must carry the minted employee ID")
	}
}

func TestValidateSessionRejectsBadTokens(t *testing.T) {
	engine, mailer := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Signup(ctx, SignupRequest{Email: "alice@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	waitMail(t, mailer.verifications)

	tampered := result.SessionToken[:len(result.SessionToken)-2] + "xx"
	for _, token := range []string{"", "garbage", "a.b.c", tampered} {
		if _, err := engine.ValidateSession(ctx, token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: got %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestValidateSessionExpiredToken(t *testing.T) {
	engine, mailer := newTestEngine(t, func(cfg *Config) {
		cfg.Token.SessionTTL = 50 * time.Millisecond
		cfg.Token.Leeway = 0
	})
	ctx := context.Background()

	result, err := engine.Signup(ctx, SignupRequest{Email: "alice@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	waitMail(t, mailer.verifications)

	if _, err := engine.ValidateSession(ctx, result.SessionToken); err != nil {
		t.Fatalf("token must validate before expiry: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := engine.ValidateSession(ctx, result.SessionToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken after expiry", err)
	}
}

func TestValidateSessionDeletedIdentity(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mailer := newCaptureMailer()
	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(client).
		WithEmailSender(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	result, err := engine.Signup(ctx, SignupRequest{Email: "alice@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	waitMail(t, mailer.verifications)

	// Remove the identity record behind the still-valid token. The claims
	// alone must not carry the session.
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "ac:id:") || strings.HasPrefix(key, "ac:email:") {
			mr.Del(key)
		}
	}

	if _, err := engine.ValidateSession(ctx, result.SessionToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken for a deleted identity", err)
	}
}
