package models

import "time"

// Comment status values. A comment is created as pending unless the author
// email is trusted (approved) or the spam score exceeds the auto-reject
// threshold (rejected). Deletion removes the row entirely.
const (
	CommentStatusPending  = "pending"
	CommentStatusApproved = "approved"
	CommentStatusRejected = "rejected"
)

// Comment represents a visitor comment awaiting or past moderation
type Comment struct {
	ID          string     `db:"id"`
	BlogID      string     `db:"blog_id"`
	AuthorName  string     `db:"author_name"`
	AuthorEmail string     `db:"author_email"`
	Body        string     `db:"comment_text"`
	Status      string     `db:"status"`
	SpamScore   float64    `db:"spam_score"`
	IPAddress   *string    `db:"ip_address"`
	UserAgent   *string    `db:"user_agent"`
	ModeratedBy *string    `db:"moderated_by"`
	ModeratedAt *time.Time `db:"moderated_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

// ValidStatusTransition reports whether a moderation action is legal.
// Only pending comments can be approved or rejected; anything can be deleted.
func ValidStatusTransition(from, to string) bool {
	if from == CommentStatusPending {
		return to == CommentStatusApproved || to == CommentStatusRejected
	}
	return false
}
