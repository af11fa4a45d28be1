package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSignupIssuesSessionAndVerificationMail(t *testing.T) {
	engine, mailer := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Signup(ctx, SignupRequest{Email: "alice@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if result.Identity.ID == "" {
		t.Fatal("expected identity ID")
	}
	if result.Identity.EmailVerified {
		t.Fatal("new identity must start unverified")
	}
	if result.Identity.EmployeeID != "" {
		t.Fatal("employee ID must not exist before verification")
	}
	if result.SessionToken == "" {
		t.Fatal("expected session token")
	}

	session, err := engine.ValidateSession(ctx, result.SessionToken)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if session.IdentityID != result.Identity.ID {
		t.Fatalf("session identity = %s, want %s", session.IdentityID, result.Identity.ID)
	}
	if session.EmailVerified {
		t.Fatal("session must reflect the unverified store record")
	}

	msg := waitMail(t, mailer.verifications)
	if msg.To != "alice@example.com" {
		t.Fatalf("verification mail to %s", msg.To)
	}
	if msg.Token == "" {
		t.Fatal("expected verification token in mail")
	}
}

func TestSignupNormalizesEmail(t *testing.T) {
	engine, mailer := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Signup(ctx, SignupRequest{Email: "  Alice@Example.COM ", Password: testPassword})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if result.Identity.Email != "alice@example.com" {
		t.Fatalf("stored email = %q, want normalized", result.Identity.Email)
	}
	waitMail(t, mailer.verifications)
}

func TestSignupDuplicateEmail(t *testing.T) {
	engine, mailer := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Signup(ctx, SignupRequest{Email: "alice@example.com", Password: testPassword}); err != nil {
		t.Fatalf("first Signup failed: %v", err)
	}
	waitMail(t, mailer.verifications)

	// Same address with different case collides on the normalized form.
	_, err := engine.Signup(ctx, SignupRequest{Email: "ALICE@example.com", Password: testPassword})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("got %v, want ErrDuplicateEmail", err)
	}
}

func TestSignupValidationFailures(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		password string
		field    string
	}{
		{"empty email", "", testPassword, "email"},
		{"malformed email", "not-an-email", testPassword, "email"},
		{"angle bracket form", "Alice <alice@example.com>", testPassword, "email"},
		{"too short", "alice@example.com", "Aa1!", "password"},
		{"no uppercase", "alice@example.com", "correct-horse-9", "password"},
		{"no lowercase", "alice@example.com", "CORRECT-HORSE-9", "password"},
		{"no digit", "alice@example.com", "Correct-Horse", "password"},
		{"no symbol", "alice@example.com", "CorrectHorse9", "password"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Signup(ctx, SignupRequest{Email: tc.email, Password: tc.password})
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("got %T, want *ValidationError", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("field = %s, want %s", ve.Field, tc.field)
			}
		})
	}
}

func TestSignupPasswordHashNeverPlaintext(t *testing.T) {
	engine, mailer := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Signup(ctx, SignupRequest{Email: "alice@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	waitMail(t, mailer.verifications)

	if strings.Contains(result.Identity.PasswordHash, testPassword) {
		t.Fatal("digest contains the plaintext password")
	}
	if !strings.HasPrefix(result.Identity.PasswordHash, "$argon2id$") {
		t.Fatalf("digest %q is not argon2id PHC", result.Identity.PasswordHash)
	}
}
