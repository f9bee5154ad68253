package models

import "time"

// Session is the server-side session state referenced by the session cookie.
// The CSRF token lives on the session record so that a token is only ever
// valid for the session it was issued to.
type Session struct {
	ID            string     `db:"id"`
	CreatedAt     time.Time  `db:"created_at"`
	LastSeenAt    time.Time  `db:"last_seen_at"`
	Authenticated bool       `db:"authenticated"`
	AdminID       *string    `db:"admin_id"`
	AdminUsername *string    `db:"admin_username"`
	CSRFToken     *string    `db:"csrf_token"`
	CSRFIssuedAt  *time.Time `db:"csrf_issued_at"`
}
