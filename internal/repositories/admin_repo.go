package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rmvisser/gatehouse/internal/database"
	"github.com/rmvisser/gatehouse/internal/models"
)

// AdminRepository handles database operations for moderator accounts
type AdminRepository struct {
	db *database.DB
}

// NewAdminRepository creates a new AdminRepository
func NewAdminRepository(db *database.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

const adminColumns = `
	id, username, email, password_hash, is_active, totp_secret, totp_enabled, last_login, created_at
`

func scanAdmin(row interface{ Scan(...any) error }) (*models.AdminUser, error) {
	var a models.AdminUser
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.IsActive,
		&a.TOTPSecret,
		&a.TOTPEnabled,
		&a.LastLogin,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

// GetByUsername returns the account with the given username or models.ErrNotFound
func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	query := `SELECT ` + adminColumns + ` FROM admin_users WHERE username = $1`
	return scanAdmin(r.db.Pool.QueryRow(ctx, query, username))
}

// GetByID returns the account with the given ID or models.ErrNotFound
func (r *AdminRepository) GetByID(ctx context.Context, id string) (*models.AdminUser, error) {
	query := `SELECT ` + adminColumns + ` FROM admin_users WHERE id = $1`
	return scanAdmin(r.db.Pool.QueryRow(ctx, query, id))
}

// Create inserts a moderator account and fills in the generated ID
func (r *AdminRepository) Create(ctx context.Context, admin *models.AdminUser) error {
	query := `
		INSERT INTO admin_users (username, email, password_hash, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		admin.Username,
		admin.Email,
		admin.PasswordHash,
		admin.IsActive,
	).Scan(&admin.ID, &admin.CreatedAt)

	return database.MapPostgresError(err)
}

// CreateFirst inserts the bootstrap account only when no accounts exist yet.
// The count and insert run in one transaction behind a table lock so that
// concurrently starting instances cannot both create an account. Returns
// whether the account was created.
func (r *AdminRepository) CreateFirst(ctx context.Context, admin *models.AdminUser) (bool, error) {
	created := false

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE admin_users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		query := `
			INSERT INTO admin_users (username, email, password_hash, is_active)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`
		if err := tx.QueryRow(ctx, query,
			admin.Username,
			admin.Email,
			admin.PasswordHash,
			admin.IsActive,
		).Scan(&admin.ID, &admin.CreatedAt); err != nil {
			return err
		}

		created = true
		return nil
	})

	return created, database.MapPostgresError(err)
}

// UpdateLastLogin stamps a successful authentication
func (r *AdminRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE admin_users SET last_login = $2 WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, id, at)
	return database.MapPostgresError(err)
}

// SetTOTP stores or clears the second-factor secret for an account
func (r *AdminRepository) SetTOTP(ctx context.Context, id string, secret *string, enabled bool) error {
	query := `UPDATE admin_users SET totp_secret = $2, totp_enabled = $3 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, secret, enabled)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
