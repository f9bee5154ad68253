package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rmvisser/gatehouse/internal/models"
	"github.com/rmvisser/gatehouse/internal/security"
	pkghttp "github.com/rmvisser/gatehouse/pkg/http"
)

type contextKey string

const sessionContextKey contextKey = "session"

// Session establishes the hardened session for every request and stores it on
// the context. Session storage failing is a hard error: without a session
// there is no CSRF binding, so the request cannot proceed safely.
func Session(guard *security.SessionGuard, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := guard.Ensure(w, r)
			if err != nil {
				logger.Error("failed to establish session", slog.Any("error", err))
				pkghttp.WriteInternalError(w, "session unavailable")
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the request's session, or nil outside the
// Session middleware
func SessionFromContext(ctx context.Context) *models.Session {
	session, _ := ctx.Value(sessionContextKey).(*models.Session)
	return session
}

// RequireAdmin rejects requests whose session is not an authenticated admin
// session. It must run inside the Session middleware.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			if session == nil || !session.Authenticated {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
