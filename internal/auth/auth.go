// Package auth resolves bearer session tokens to user identities. Sessions
// are minted by an external gateway; this package only reads them.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"saldo/internal/core"
	applog "saldo/internal/log"
)

type contextKey string

const userKey contextKey = "user_id"

// SessionStore resolves a session token to its owning user. Expired or
// unknown tokens return an error.
type SessionStore interface {
	SessionUser(ctx context.Context, token string) (core.UserID, error)
}

// CurrentUser returns the authenticated user placed by Middleware, or ""
// when the request never passed through it.
func CurrentUser(ctx context.Context) core.UserID {
	if id, ok := ctx.Value(userKey).(core.UserID); ok {
		return id
	}
	return ""
}

// WithUser returns a context carrying the user identity. Exposed for tests
// and for worker paths that already know the owner.
func WithUser(ctx context.Context, id core.UserID) context.Context {
	return context.WithValue(ctx, userKey, id)
}

// Middleware authenticates requests via "Authorization: Bearer <token>" and
// stores the resolved user in the request context. Requests without a valid
// session get 401 before reaching the handler.
func Middleware(sessions SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}

			userID, err := sessions.SessionUser(r.Context(), token)
			if err != nil {
				slog.WarnContext(r.Context(), "Session rejected", applog.FieldError, err)
				http.Error(w, `{"error":"invalid or expired session"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
