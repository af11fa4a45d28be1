package jwt

import (
	"errors"
	"testing"
	"time"
)

func testSecret() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func newTestManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		Secret:     testSecret(),
		Issuer:     "authcore-test",
		SessionTTL: ttl,
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	return m
}

func TestIssueAndVerify(t *testing.T) {
	m := newTestManager(t, 7*24*time.Hour)

	token, err := m.Issue("id-1", "a@x.com")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.Subject != "id-1" {
		t.Fatalf("subject = %q, want id-1", claims.Subject)
	}
	if claims.Email != "a@x.com" {
		t.Fatalf("email = %q, want a@x.com", claims.Email)
	}
	if claims.Issuer != "authcore-test" {
		t.Fatalf("issuer = %q, want authcore-test", claims.Issuer)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	m := newTestManager(t, time.Hour)

	token, err := m.Issue("id-1", "a@x.com")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := m.Verify(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m := newTestManager(t, time.Hour)

	other, err := NewManager(Config{
		Secret:     []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:     "authcore-test",
		SessionTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	token, err := other.Issue("id-1", "a@x.com")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if _, err := m.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsIssuerMismatch(t *testing.T) {
	m := newTestManager(t, time.Hour)

	foreign, err := NewManager(Config{
		Secret:     testSecret(),
		Issuer:     "someone-else",
		SessionTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	token, err := foreign.Issue("id-1", "a@x.com")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if _, err := m.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := newTestManager(t, time.Hour)

	token, err := m.IssueWithTTL("id-1", "a@x.com", -time.Second)
	if err != nil {
		t.Fatalf("IssueWithTTL error: %v", err)
	}

	if _, err := m.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := newTestManager(t, time.Hour)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := m.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{Secret: []byte("short"), Issuer: "x", SessionTTL: time.Hour},
		{Secret: testSecret(), Issuer: "", SessionTTL: time.Hour},
		{Secret: testSecret(), Issuer: "x", SessionTTL: 0},
		{Secret: testSecret(), Issuer: "x", SessionTTL: time.Hour, Leeway: 5 * time.Minute},
	}

	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config rejection", i)
		}
	}
}
