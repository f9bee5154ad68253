package models

import "time"

// AttemptKind identifies which counter on a rate limit record an attempt
// belongs to. Each kind has its own window and maximum; the lockout is shared.
type AttemptKind string

const (
	AttemptKindComment AttemptKind = "comment"
	AttemptKindLogin   AttemptKind = "login"
)

// RateLimitRecord is the persisted per-IP attempt state. One row per IP;
// kind-specific counters are columns, not separate rows.
type RateLimitRecord struct {
	IPAddress       string     `db:"ip_address"`
	CommentAttempts int        `db:"comment_attempts"`
	LoginAttempts   int        `db:"login_attempts"`
	LastAttempt     time.Time  `db:"last_attempt"`
	LockedUntil     *time.Time `db:"locked_until"`
}

// AttemptsFor returns the counter for the given kind
func (r *RateLimitRecord) AttemptsFor(kind AttemptKind) int {
	if kind == AttemptKindLogin {
		return r.LoginAttempts
	}
	return r.CommentAttempts
}

// RateLimitDecision is the outcome of a check-and-record call
type RateLimitDecision struct {
	Allowed           bool
	Reason            string
	RetryAfterSeconds int
	Remaining         int
}
