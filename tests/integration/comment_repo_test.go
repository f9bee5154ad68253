package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmvisser/gatehouse/internal/models"
	"github.com/rmvisser/gatehouse/internal/repositories"
)

func seedComment(t *testing.T, repo *repositories.CommentRepository, blogID, status string) *models.Comment {
	t.Helper()
	ip := "198.51.100.7"
	comment := &models.Comment{
		BlogID:      blogID,
		AuthorName:  "Alice",
		AuthorEmail: "alice@example.com",
		Body:        "A perfectly reasonable comment about the post.",
		Status:      status,
		SpamScore:   0.1,
		IPAddress:   &ip,
	}
	require.NoError(t, repo.Create(context.Background(), comment))
	return comment
}

func TestCommentRepository_CreateFillsGeneratedFields(t *testing.T) {
	db := testDatabase(t)
	repo := repositories.NewCommentRepository(db.DB)

	comment := seedComment(t, repo, "first-post", models.CommentStatusPending)
	assert.NotEmpty(t, comment.ID)
	assert.False(t, comment.CreatedAt.IsZero())
}

func TestCommentRepository_ListApprovedByBlogFiltersAndOrders(t *testing.T) {
	db := testDatabase(t)
	repo := repositories.NewCommentRepository(db.DB)
	ctx := context.Background()

	first := seedComment(t, repo, "first-post", models.CommentStatusApproved)
	second := seedComment(t, repo, "first-post", models.CommentStatusApproved)
	seedComment(t, repo, "first-post", models.CommentStatusPending)
	seedComment(t, repo, "other-post", models.CommentStatusApproved)

	comments, err := repo.ListApprovedByBlog(ctx, "first-post")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, first.ID, comments[0].ID)
	assert.Equal(t, second.ID, comments[1].ID)
}

func TestCommentRepository_UpdateStatusEnforcesCurrentStatus(t *testing.T) {
	db := testDatabase(t)
	repo := repositories.NewCommentRepository(db.DB)
	ctx := context.Background()

	comment := seedComment(t, repo, "first-post", models.CommentStatusPending)
	now := time.Now().UTC()

	require.NoError(t, repo.UpdateStatus(ctx, comment.ID, models.CommentStatusPending, models.CommentStatusApproved, "moderator", now))

	// A second transition from pending fails: the row is approved now
	err := repo.UpdateStatus(ctx, comment.ID, models.CommentStatusPending, models.CommentStatusRejected, "moderator", now)
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := repo.GetByID(ctx, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommentStatusApproved, got.Status)
	require.NotNil(t, got.ModeratedBy)
	assert.Equal(t, "moderator", *got.ModeratedBy)
}

func TestCommentRepository_Delete(t *testing.T) {
	db := testDatabase(t)
	repo := repositories.NewCommentRepository(db.DB)
	ctx := context.Background()

	comment := seedComment(t, repo, "first-post", models.CommentStatusRejected)
	require.NoError(t, repo.Delete(ctx, comment.ID))

	_, err := repo.GetByID(ctx, comment.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = repo.Delete(ctx, comment.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCommentRepository_CountByStatus(t *testing.T) {
	db := testDatabase(t)
	repo := repositories.NewCommentRepository(db.DB)

	seedComment(t, repo, "first-post", models.CommentStatusPending)
	seedComment(t, repo, "first-post", models.CommentStatusPending)
	seedComment(t, repo, "first-post", models.CommentStatusApproved)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.CommentStatusPending])
	assert.Equal(t, 1, counts[models.CommentStatusApproved])
}

func TestCommentRepository_IPAnonymizationRoundTrip(t *testing.T) {
	db := testDatabase(t)
	repo := repositories.NewCommentRepository(db.DB)
	ctx := context.Background()

	comment := seedComment(t, repo, "first-post", models.CommentStatusApproved)

	// Age the comment past the retention cutoff
	_, err := db.Pool.Exec(ctx, `UPDATE comments SET created_at = now() - INTERVAL '40 days' WHERE id = $1`, comment.ID)
	require.NoError(t, err)

	rows, err := repo.ListStaleIPs(ctx, time.Now().UTC().Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "198.51.100.7", rows[0].IPAddress)

	require.NoError(t, repo.SetIPAddress(ctx, comment.ID, "198.51.0.0"))

	got, err := repo.GetByID(ctx, comment.ID)
	require.NoError(t, err)
	require.NotNil(t, got.IPAddress)
	assert.Equal(t, "198.51.0.0", *got.IPAddress)
}
