package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authcore "github.com/callvault/authcore"
)

type testSender struct {
	verifications chan string
}

func (s *testSender) SendVerificationEmail(_ context.Context, _ string, token string, _ time.Duration) error {
	s.verifications <- token
	return nil
}

func (s *testSender) SendPasswordResetEmail(context.Context, string, string, time.Duration) error {
	return nil
}

func (s *testSender) SendWelcomeEmail(context.Context, string, string) error {
	return nil
}

func newGuardedServer(t *testing.T) (*authcore.Engine, string) {
	t.Helper()

	cfg := authcore.DefaultConfig()
	cfg.Token.Secret = []byte("middleware-test-secret-0123456789")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	sender := &testSender{verifications: make(chan string, 1)}
	engine, err := authcore.New().
		WithConfig(cfg).
		WithMemoryStore().
		WithEmailSender(sender).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	result, err := engine.Signup(context.Background(), authcore.SignupRequest{
		Email:    "alice@example.com",
		Password: "Correct-Horse-9",
	})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	return engine, result.SessionToken
}

func guardedHandler(t *testing.T, engine *authcore.Engine) http.Handler {
	t.Helper()
	return RequireSession(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			t.Error("guarded handler reached without session in context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("X-Identity", session.IdentityID)
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRequireSessionBearerToken(t *testing.T) {
	engine, token := newGuardedServer(t)
	handler := guardedHandler(t, engine)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Identity") == "" {
		t.Fatal("expected identity header from guarded handler")
	}
}

func TestRequireSessionCookie(t *testing.T) {
	engine, token := newGuardedServer(t)
	handler := guardedHandler(t, engine)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequireSessionHeaderBeatsCookie(t *testing.T) {
	engine, token := newGuardedServer(t)
	handler := guardedHandler(t, engine)

	// A garbage bearer token must not fall back to the valid cookie.
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireSessionRejections(t *testing.T) {
	engine, _ := newGuardedServer(t)
	handler := guardedHandler(t, engine)

	cases := []struct {
		name    string
		prepare func(*http.Request)
	}{
		{"no credentials", func(*http.Request) {}},
		{"empty bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") }},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }},
		{"garbage token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }},
		{"empty cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: ""}) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tc.prepare(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRequireSessionNilEngine(t *testing.T) {
	handler := RequireSession(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
