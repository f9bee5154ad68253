package security

import (
	"context"
	"time"

	"github.com/rmvisser/gatehouse/internal/models"
)

// SessionStore defines the persistence the token store and session guard
// need. The pgx-backed implementation lives in internal/repositories.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	Touch(ctx context.Context, id string, at time.Time) error
	RotateID(ctx context.Context, oldID, newID string, createdAt time.Time) error
	SetCSRFToken(ctx context.Context, sessionID, token string, issuedAt time.Time) error
	SetAuthenticated(ctx context.Context, sessionID, adminID, username string) error
	Delete(ctx context.Context, id string) error
}
