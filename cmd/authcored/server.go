package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	authcore "github.com/callvault/authcore"
	"github.com/callvault/authcore/middleware"
	promexport "github.com/callvault/authcore/metrics/export/prometheus"
)

func serve(ctx context.Context, engine *authcore.Engine, cfg authcore.Config, addr string) error {
	router, err := newRouter(engine, cfg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

type api struct {
	engine *authcore.Engine
	cfg    authcore.Config
}

func newRouter(engine *authcore.Engine, cfg authcore.Config) (chi.Router, error) {
	collector, err := promexport.NewCollector(engine)
	if err != nil {
		return nil, err
	}

	a := &api{engine: engine, cfg: cfg}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(clientIP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Method(http.MethodGet, "/metrics", collector.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/signup", a.signup)
		r.Post("/login", a.login)
		r.Post("/logout", a.logout)
		r.Post("/verify-email/request", a.requestVerification)
		r.Post("/verify-email", a.verifyEmail)
		r.Post("/forgot-password", a.forgotPassword)
		r.Post("/reset-password", a.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(engine))
			r.Get("/me", a.me)
		})
	})

	return r, nil
}

// clientIP forwards the connection's IP into the request context so the
// engine can key its per-IP attempt window. RealIP has already rewritten
// RemoteAddr from X-Forwarded-For where applicable.
func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		next.ServeHTTP(w, r.WithContext(authcore.WithClientIP(r.Context(), host)))
	})
}

type identityView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmployeeID    string    `json:"employee_id,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

func viewOf(id authcore.Identity) identityView {
	return identityView{
		ID:            id.ID,
		Email:         id.Email,
		EmployeeID:    id.EmployeeID,
		EmailVerified: id.EmailVerified,
		CreatedAt:     id.CreatedAt,
	}
}

type sessionResponse struct {
	Identity     identityView `json:"identity"`
	SessionToken string       `json:"session_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

func (a *api) signup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &in) {
		return
	}

	result, err := a.engine.Signup(r.Context(), authcore.SignupRequest{
		Email:    in.Email,
		Password: in.Password,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.setSessionCookie(w, result.SessionToken, result.ExpiresAt)
	writeJSON(w, http.StatusCreated, sessionResponse{
		Identity:     viewOf(result.Identity),
		SessionToken: result.SessionToken,
		ExpiresAt:    result.ExpiresAt,
	})
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email      string `json:"email"`
		EmployeeID string `json:"employee_id"`
		Password   string `json:"password"`
	}
	if !decode(w, r, &in) {
		return
	}

	result, err := a.engine.Login(r.Context(), authcore.LoginRequest{
		Email:      in.Email,
		EmployeeID: in.EmployeeID,
		Password:   in.Password,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.setSessionCookie(w, result.SessionToken, result.ExpiresAt)
	writeJSON(w, http.StatusOK, sessionResponse{
		Identity:     viewOf(result.Identity),
		SessionToken: result.SessionToken,
		ExpiresAt:    result.ExpiresAt,
	})
}

func (a *api) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.cfg.Security.ProductionMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) requestVerification(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := a.engine.RequestEmailVerification(r.Context(), in.Email); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if !decode(w, r, &in) {
		return
	}
	result, err := a.engine.VerifyEmail(r.Context(), in.Token)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"email":       result.Email,
		"employee_id": result.EmployeeID,
	})
}

func (a *api) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := a.engine.ForgotPassword(r.Context(), in.Email); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) resetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := a.engine.ResetPassword(r.Context(), in.Token, in.NewPassword); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody("invalid session"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity_id":    session.IdentityID,
		"email":          session.Email,
		"employee_id":    session.EmployeeID,
		"email_verified": session.EmailVerified,
		"expires_at":     session.ExpiresAt,
	})
}

func (a *api) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.cfg.Security.ProductionMode,
	})
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	var rl *authcore.RateLimitedError
	if errors.As(err, &rl) {
		retry := int(time.Until(rl.ResetAt).Seconds())
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeJSON(w, http.StatusTooManyRequests, errorBody("too many attempts"))
		return
	}

	switch {
	case errors.Is(err, authcore.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, authcore.ErrDuplicateEmail):
		writeJSON(w, http.StatusConflict, errorBody("email already registered"))
	case errors.Is(err, authcore.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody("invalid credentials"))
	case errors.Is(err, authcore.ErrEmailNotVerified):
		writeJSON(w, http.StatusForbidden, errorBody("email not verified"))
	case errors.Is(err, authcore.ErrInvalidOrExpiredToken):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid or expired token"))
	case errors.Is(err, authcore.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorBody("invalid session"))
	case errors.Is(err, authcore.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("temporarily unavailable"))
	default:
		log.Printf("unhandled error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		writeJSON(w, http.StatusUnsupportedMediaType, errorBody("expected application/json"))
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}
