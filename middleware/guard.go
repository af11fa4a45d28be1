package middleware

import (
	"context"
	"net/http"
	"strings"

	authcore "github.com/callvault/authcore"
)

// SessionCookieName is the cookie the service binary sets on login and the
// guard reads back. The Authorization header takes precedence when present.
const SessionCookieName = "authcore_session"

type sessionContextKey struct{}

// SessionFromContext returns the validated session injected by
// RequireSession.
func SessionFromContext(ctx context.Context) (*authcore.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*authcore.Session)
	return s, ok
}

// RequireSession rejects requests without a valid session token.
func RequireSession(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := requestToken(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			session, err := engine.ValidateSession(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestToken(r *http.Request) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
