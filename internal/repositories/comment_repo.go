package repositories

import (
	"context"
	"time"

	"github.com/rmvisser/gatehouse/internal/database"
	"github.com/rmvisser/gatehouse/internal/models"
)

// CommentRepository handles database operations for comments
type CommentRepository struct {
	db *database.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *database.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

const commentColumns = `
	id, blog_id, author_name, author_email, comment_text, status, spam_score,
	ip_address, user_agent, moderated_by, moderated_at, created_at
`

func scanComment(row interface{ Scan(...any) error }) (*models.Comment, error) {
	var c models.Comment
	err := row.Scan(
		&c.ID,
		&c.BlogID,
		&c.AuthorName,
		&c.AuthorEmail,
		&c.Body,
		&c.Status,
		&c.SpamScore,
		&c.IPAddress,
		&c.UserAgent,
		&c.ModeratedBy,
		&c.ModeratedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &c, nil
}

// Create inserts a comment and fills in the generated ID and timestamp
func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	query := `
		INSERT INTO comments (blog_id, author_name, author_email, comment_text, status, spam_score, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		comment.BlogID,
		comment.AuthorName,
		comment.AuthorEmail,
		comment.Body,
		comment.Status,
		comment.SpamScore,
		comment.IPAddress,
		comment.UserAgent,
	).Scan(&comment.ID, &comment.CreatedAt)

	return database.MapPostgresError(err)
}

// GetByID returns a single comment or models.ErrNotFound
func (r *CommentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1`
	return scanComment(r.db.Pool.QueryRow(ctx, query, id))
}

// ListApprovedByBlog returns approved comments for a blog post, oldest first
func (r *CommentRepository) ListApprovedByBlog(ctx context.Context, blogID string) ([]*models.Comment, error) {
	query := `
		SELECT ` + commentColumns + `
		FROM comments
		WHERE blog_id = $1 AND status = $2
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, blogID, models.CommentStatusApproved)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return comments, nil
}

// ListByStatus returns comments in a given state for the moderation queue,
// newest first
func (r *CommentRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*models.Comment, error) {
	query := `
		SELECT ` + commentColumns + `
		FROM comments
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return comments, nil
}

// UpdateStatus records a moderation decision. The status filter in the WHERE
// clause enforces the pending-only transition at the database level, so two
// moderators racing on the same comment cannot both win.
func (r *CommentRepository) UpdateStatus(ctx context.Context, id, fromStatus, toStatus, moderator string, at time.Time) error {
	query := `
		UPDATE comments
		SET status = $3, moderated_by = $4, moderated_at = $5
		WHERE id = $1 AND status = $2
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, fromStatus, toStatus, moderator, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a comment permanently
func (r *CommentRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM comments WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountByStatus returns queue sizes for the moderation dashboard
func (r *CommentRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM comments GROUP BY status`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, database.MapPostgresError(err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return counts, nil
}

// CommentIP pairs a comment ID with its stored IP for the retention job
type CommentIP struct {
	ID        string
	IPAddress string
}

// ListStaleIPs returns comments older than the cutoff that still carry an IP
func (r *CommentRepository) ListStaleIPs(ctx context.Context, before time.Time) ([]CommentIP, error) {
	query := `
		SELECT id, ip_address
		FROM comments
		WHERE created_at < $1 AND ip_address IS NOT NULL
	`

	rows, err := r.db.Pool.Query(ctx, query, before)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var out []CommentIP
	for rows.Next() {
		var row CommentIP
		if err := rows.Scan(&row.ID, &row.IPAddress); err != nil {
			return nil, database.MapPostgresError(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return out, nil
}

// SetIPAddress overwrites the stored IP, used to anonymize aged comments
func (r *CommentRepository) SetIPAddress(ctx context.Context, id, ipAddress string) error {
	query := `UPDATE comments SET ip_address = $2 WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, id, ipAddress)
	return database.MapPostgresError(err)
}
