package repositories

import (
	"context"
	"time"

	"github.com/rmvisser/gatehouse/internal/database"
	"github.com/rmvisser/gatehouse/internal/models"
)

// RateLimitRepository handles database operations for per-IP attempt records
type RateLimitRepository struct {
	db *database.DB
}

// NewRateLimitRepository creates a new RateLimitRepository
func NewRateLimitRepository(db *database.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// Get returns the record for an IP, or models.ErrNotFound
func (r *RateLimitRepository) Get(ctx context.Context, ipAddress string) (*models.RateLimitRecord, error) {
	query := `
		SELECT ip_address, comment_attempts, login_attempts, last_attempt, locked_until
		FROM rate_limits
		WHERE ip_address = $1
	`

	var rec models.RateLimitRecord
	err := r.db.Pool.QueryRow(ctx, query, ipAddress).Scan(
		&rec.IPAddress,
		&rec.CommentAttempts,
		&rec.LoginAttempts,
		&rec.LastAttempt,
		&rec.LockedUntil,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &rec, nil
}

// Increment queries: the counter reset-or-increment decision happens inside a
// single conditional upsert so concurrent bursts from one IP cannot
// undercount. windowStart marks the boundary: a last_attempt before it means
// the kind's window has lapsed, resetting its counter to 1 and clearing any
// stale lockout; otherwise the counter increments. The other kind's counter
// is never touched.
const incrementCommentQuery = `
	INSERT INTO rate_limits (ip_address, comment_attempts, login_attempts, last_attempt)
	VALUES ($1, 1, 0, $2)
	ON CONFLICT (ip_address) DO UPDATE SET
		comment_attempts = CASE WHEN rate_limits.last_attempt < $3 THEN 1 ELSE rate_limits.comment_attempts + 1 END,
		locked_until     = CASE WHEN rate_limits.last_attempt < $3 THEN NULL ELSE rate_limits.locked_until END,
		last_attempt     = $2
	RETURNING ip_address, comment_attempts, login_attempts, last_attempt, locked_until
`

const incrementLoginQuery = `
	INSERT INTO rate_limits (ip_address, comment_attempts, login_attempts, last_attempt)
	VALUES ($1, 0, 1, $2)
	ON CONFLICT (ip_address) DO UPDATE SET
		login_attempts = CASE WHEN rate_limits.last_attempt < $3 THEN 1 ELSE rate_limits.login_attempts + 1 END,
		locked_until   = CASE WHEN rate_limits.last_attempt < $3 THEN NULL ELSE rate_limits.locked_until END,
		last_attempt   = $2
	RETURNING ip_address, comment_attempts, login_attempts, last_attempt, locked_until
`

// IncrementAttempt records an attempt of the given kind atomically and
// returns the post-increment record
func (r *RateLimitRepository) IncrementAttempt(ctx context.Context, ipAddress string, kind models.AttemptKind, now, windowStart time.Time) (*models.RateLimitRecord, error) {
	query := incrementCommentQuery
	if kind == models.AttemptKindLogin {
		query = incrementLoginQuery
	}

	var rec models.RateLimitRecord
	err := r.db.Pool.QueryRow(ctx, query, ipAddress, now, windowStart).Scan(
		&rec.IPAddress,
		&rec.CommentAttempts,
		&rec.LoginAttempts,
		&rec.LastAttempt,
		&rec.LockedUntil,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &rec, nil
}

// Lock sets the lockout timestamp for an IP
func (r *RateLimitRepository) Lock(ctx context.Context, ipAddress string, until time.Time) error {
	query := `UPDATE rate_limits SET locked_until = $2 WHERE ip_address = $1`
	_, err := r.db.Pool.Exec(ctx, query, ipAddress, until)
	return database.MapPostgresError(err)
}

// DeleteStale purges records whose last activity and lockout both predate the
// retention cutoff. Their counters are long past any active window or lockout.
func (r *RateLimitRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM rate_limits
		WHERE last_attempt < $1 AND (locked_until IS NULL OR locked_until < $1)
	`
	tag, err := r.db.Pool.Exec(ctx, query, before)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
