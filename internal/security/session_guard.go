package security

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rmvisser/gatehouse/internal/models"
	pkghttp "github.com/rmvisser/gatehouse/pkg/http"
)

// GuardConfig holds session hardening parameters
type GuardConfig struct {
	CookieName  string
	Lifetime    time.Duration // server-side inactivity expiry
	RotateAfter time.Duration // session ID regeneration interval
}

// SessionGuard establishes a hardened session for each request: secure
// cookie flags, server-side expiry, and periodic ID rotation as a session
// fixation/hijacking mitigation.
type SessionGuard struct {
	store   SessionStore
	config  GuardConfig
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewSessionGuard creates a session guard
func NewSessionGuard(store SessionStore, config GuardConfig, logger *slog.Logger) *SessionGuard {
	return &SessionGuard{
		store:   store,
		config:  config,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Ensure returns the request's live session, creating one when the cookie is
// absent, unknown, or expired. When the session is older than RotateAfter,
// the identifier is regenerated in a single UPDATE so that all other
// attributes survive the rotation.
func (g *SessionGuard) Ensure(w http.ResponseWriter, r *http.Request) (*models.Session, error) {
	ctx := r.Context()
	now := g.nowFunc()

	if cookie, err := r.Cookie(g.config.CookieName); err == nil && cookie.Value != "" {
		session, err := g.store.Get(ctx, cookie.Value)
		switch {
		case err == nil:
			if now.Sub(session.LastSeenAt) < g.config.Lifetime {
				return g.refresh(ctx, w, r, session, now)
			}
			// Expired server-side; discard and start over
			if delErr := g.store.Delete(ctx, session.ID); delErr != nil {
				g.logger.Warn("failed to delete expired session", slog.Any("error", delErr))
			}
		case errors.Is(err, models.ErrNotFound):
			// Unknown cookie value, fall through to create
		default:
			// Session storage fails closed
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
	}

	return g.create(ctx, w, r, now)
}

// refresh touches the session's activity timestamp and rotates the ID if due
func (g *SessionGuard) refresh(ctx context.Context, w http.ResponseWriter, r *http.Request, session *models.Session, now time.Time) (*models.Session, error) {
	if now.Sub(session.CreatedAt) > g.config.RotateAfter {
		newID, err := newSessionID()
		if err != nil {
			return nil, err
		}
		if err := g.store.RotateID(ctx, session.ID, newID, now); err != nil {
			return nil, fmt.Errorf("failed to rotate session id: %w", err)
		}
		g.logger.Info("session id rotated", slog.String("session_id", newID[:8]))
		session.ID = newID
		session.CreatedAt = now
	}

	if err := g.store.Touch(ctx, session.ID, now); err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	session.LastSeenAt = now

	g.setCookie(w, r, session.ID)
	return session, nil
}

// create starts a fresh anonymous session
func (g *SessionGuard) create(ctx context.Context, w http.ResponseWriter, r *http.Request, now time.Time) (*models.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:         id,
		CreatedAt:  now,
		LastSeenAt: now,
	}

	if err := g.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	g.setCookie(w, r, id)
	return session, nil
}

// Authenticate marks the session as an authenticated admin session
func (g *SessionGuard) Authenticate(ctx context.Context, session *models.Session, admin *models.AdminUser) error {
	if err := g.store.SetAuthenticated(ctx, session.ID, admin.ID, admin.Username); err != nil {
		return fmt.Errorf("failed to authenticate session: %w", err)
	}
	session.Authenticated = true
	session.AdminID = &admin.ID
	session.AdminUsername = &admin.Username
	return nil
}

// Destroy removes the session server-side and clears the cookie
func (g *SessionGuard) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request, session *models.Session) error {
	if err := g.store.Delete(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     g.config.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   pkghttp.IsSecureRequest(r),
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// setCookie writes the session cookie with hardened flags. Secure mirrors the
// inbound transport so local development over plain HTTP still works.
func (g *SessionGuard) setCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.config.CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(g.config.Lifetime.Seconds()),
		HttpOnly: true,
		Secure:   pkghttp.IsSecureRequest(r),
		SameSite: http.SameSiteStrictMode,
	})
}

// newSessionID returns a 256-bit random identifier
func newSessionID() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}
