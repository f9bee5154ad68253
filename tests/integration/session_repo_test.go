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

func seedSession(t *testing.T, repo *repositories.SessionRepository, id string) *models.Session {
	t.Helper()
	session := &models.Session{
		ID:         id,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
		LastSeenAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, repo.Create(context.Background(), session))
	return session
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	db := testDatabase(t)
	repo := repositories.NewSessionRepository(db.DB)

	created := seedSession(t, repo, "session-a")

	got, err := repo.Get(context.Background(), "session-a")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.False(t, got.Authenticated)
	assert.Nil(t, got.CSRFToken)
}

func TestSessionRepository_RotateIDPreservesAttributes(t *testing.T) {
	db := testDatabase(t)
	repo := repositories.NewSessionRepository(db.DB)
	ctx := context.Background()

	session := seedSession(t, repo, "session-old")

	issuedAt := time.Now().UTC()
	require.NoError(t, repo.SetCSRFToken(ctx, session.ID, "csrf-token-value", issuedAt))

	rotatedAt := time.Now().UTC()
	require.NoError(t, repo.RotateID(ctx, "session-old", "session-new", rotatedAt))

	_, err := repo.Get(ctx, "session-old")
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := repo.Get(ctx, "session-new")
	require.NoError(t, err)
	require.NotNil(t, got.CSRFToken)
	assert.Equal(t, "csrf-token-value", *got.CSRFToken)
	assert.WithinDuration(t, rotatedAt, got.CreatedAt, time.Second)
}

func TestSessionRepository_RotateUnknownID(t *testing.T) {
	db := testDatabase(t)
	repo := repositories.NewSessionRepository(db.DB)

	err := repo.RotateID(context.Background(), "missing", "new-id", time.Now().UTC())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSessionRepository_SetAuthenticated(t *testing.T) {
	db := testDatabase(t)
	sessionRepo := repositories.NewSessionRepository(db.DB)
	adminRepo := repositories.NewAdminRepository(db.DB)
	ctx := context.Background()

	admin := &models.AdminUser{
		Username:     "moderator",
		Email:        "mod@example.com",
		PasswordHash: "hash",
		IsActive:     true,
	}
	require.NoError(t, adminRepo.Create(ctx, admin))

	session := seedSession(t, sessionRepo, "session-auth")
	require.NoError(t, sessionRepo.SetAuthenticated(ctx, session.ID, admin.ID, admin.Username))

	got, err := sessionRepo.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, got.Authenticated)
	require.NotNil(t, got.AdminUsername)
	assert.Equal(t, "moderator", *got.AdminUsername)
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	db := testDatabase(t)
	repo := repositories.NewSessionRepository(db.DB)
	ctx := context.Background()

	stale := seedSession(t, repo, "session-stale")
	require.NoError(t, repo.Touch(ctx, stale.ID, time.Now().UTC().Add(-2*time.Hour)))
	seedSession(t, repo, "session-live")

	deleted, err := repo.DeleteExpired(ctx, time.Now().UTC().Add(-1*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.Get(ctx, "session-stale")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = repo.Get(ctx, "session-live")
	assert.NoError(t, err)
}
