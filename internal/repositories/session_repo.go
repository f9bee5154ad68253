package repositories

import (
	"context"
	"time"

	"github.com/rmvisser/gatehouse/internal/database"
	"github.com/rmvisser/gatehouse/internal/models"
)

// SessionRepository handles database operations for server-side sessions.
// It implements security.SessionStore.
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Get loads a session by its identifier
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, created_at, last_seen_at, authenticated, admin_id, admin_username, csrf_token, csrf_issued_at
		FROM sessions
		WHERE id = $1
	`

	var s models.Session
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.CreatedAt,
		&s.LastSeenAt,
		&s.Authenticated,
		&s.AdminID,
		&s.AdminUsername,
		&s.CSRFToken,
		&s.CSRFIssuedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &s, nil
}

// Create inserts a fresh session row
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, created_at, last_seen_at, authenticated)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Pool.Exec(ctx, query, session.ID, session.CreatedAt, session.LastSeenAt, session.Authenticated)
	return database.MapPostgresError(err)
}

// Touch updates the activity timestamp used for server-side expiry
func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, id, at)
	return database.MapPostgresError(err)
}

// RotateID swaps the primary key in a single UPDATE. All other columns ride
// along untouched, which is what makes the rotation atomic: there is no
// window where a new ID exists without the old session's attributes.
func (r *SessionRepository) RotateID(ctx context.Context, oldID, newID string, createdAt time.Time) error {
	query := `UPDATE sessions SET id = $2, created_at = $3 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, oldID, newID, createdAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetCSRFToken stores a token and its issue time, replacing any prior token
func (r *SessionRepository) SetCSRFToken(ctx context.Context, sessionID, token string, issuedAt time.Time) error {
	query := `UPDATE sessions SET csrf_token = $2, csrf_issued_at = $3 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, sessionID, token, issuedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetAuthenticated marks a session as belonging to a logged-in admin
func (r *SessionRepository) SetAuthenticated(ctx context.Context, sessionID, adminID, username string) error {
	query := `
		UPDATE sessions SET authenticated = true, admin_id = $2, admin_username = $3
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, sessionID, adminID, username)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a session row
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, id)
	return database.MapPostgresError(err)
}

// DeleteExpired removes sessions idle since before the cutoff
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE last_seen_at < $1`
	tag, err := r.db.Pool.Exec(ctx, query, before)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
