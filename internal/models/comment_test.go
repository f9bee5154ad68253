package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidStatusTransition(t *testing.T) {
	assert.True(t, ValidStatusTransition(CommentStatusPending, CommentStatusApproved))
	assert.True(t, ValidStatusTransition(CommentStatusPending, CommentStatusRejected))

	assert.False(t, ValidStatusTransition(CommentStatusApproved, CommentStatusRejected))
	assert.False(t, ValidStatusTransition(CommentStatusRejected, CommentStatusApproved))
	assert.False(t, ValidStatusTransition(CommentStatusApproved, CommentStatusPending))
	assert.False(t, ValidStatusTransition(CommentStatusPending, CommentStatusPending))
}

func TestRateLimitRecordAttemptsFor(t *testing.T) {
	rec := &RateLimitRecord{CommentAttempts: 2, LoginAttempts: 4}

	assert.Equal(t, 2, rec.AttemptsFor(AttemptKindComment))
	assert.Equal(t, 4, rec.AttemptsFor(AttemptKindLogin))
}
