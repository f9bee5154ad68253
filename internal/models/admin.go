package models

import "time"

// AdminUser represents a moderator account
type AdminUser struct {
	ID           string     `db:"id"`
	Username     string     `db:"username"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	IsActive     bool       `db:"is_active"`
	TOTPSecret   *string    `db:"totp_secret"`
	TOTPEnabled  bool       `db:"totp_enabled"`
	LastLogin    *time.Time `db:"last_login"`
	CreatedAt    time.Time  `db:"created_at"`
}
