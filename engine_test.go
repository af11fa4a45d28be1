package authcore

import (
	"context"
	"testing"
	"time"
)

const (
	testPassword    = "Correct-Horse-9"
	testNewPassword = "Other-Stable-42!"
)

var testSecret = []byte("unit-test-secret-0123456789abcdef")

type capturedMail struct {
	To    string
	Token string
}

// captureMailer records outbound mail on buffered channels so tests can wait
// for the asynchronous dispatcher.
type captureMailer struct {
	verifications chan capturedMail
	resets        chan capturedMail
	welcomes      chan capturedMail
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{
		verifications: make(chan capturedMail, 16),
		resets:        make(chan capturedMail, 16),
		welcomes:      make(chan capturedMail, 16),
	}
}

func (m *captureMailer) SendVerificationEmail(_ context.Context, to, token string, _ time.Duration) error {
	m.verifications <- capturedMail{To: to, Token: token}
	return nil
}

func (m *captureMailer) SendPasswordResetEmail(_ context.Context, to, token string, _ time.Duration) error {
	m.resets <- capturedMail{To: to, Token: token}
	return nil
}

func (m *captureMailer) SendWelcomeEmail(_ context.Context, to, employeeID string) error {
	m.welcomes <- capturedMail{To: to, Token: employeeID}
	return nil
}

func waitMail(t *testing.T, ch chan capturedMail) capturedMail {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mail delivery")
		return capturedMail{}
	}
}

func assertNoMail(t *testing.T, ch chan capturedMail) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected mail to %s", msg.To)
	case <-time.After(100 * time.Millisecond):
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = testSecret
	// Weak argon parameters; the flows under test are not hashing benchmarks.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Email.RetryBackoff = 10 * time.Millisecond
	return cfg
}

func newTestEngine(t *testing.T, mutate ...func(*Config)) (*Engine, *captureMailer) {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	mailer := newCaptureMailer()
	engine, err := New().
		WithConfig(cfg).
		WithMemoryStore().
		WithEmailSender(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, mailer
}

// signupVerified registers an account and walks it through email
// verification, returning the verified identity.
func signupVerified(t *testing.T, engine *Engine, mailer *captureMailer, emailAddr string) Identity {
	t.Helper()
	ctx := context.Background()

	if _, err := engine.Signup(ctx, SignupRequest{Email: emailAddr, Password: testPassword}); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	msg := waitMail(t, mailer.verifications)
	if _, err := engine.VerifyEmail(ctx, msg.Token); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	waitMail(t, mailer.welcomes)

	result, err := engine.Login(ctx, LoginRequest{Email: emailAddr, Password: testPassword})
	if err != nil {
		t.Fatalf("Login after verification failed: %v", err)
	}
	return result.Identity
}
