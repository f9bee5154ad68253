package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rmvisser/gatehouse/internal/config"
	"github.com/rmvisser/gatehouse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRateLimitStore mirrors the conditional upsert semantics of the real
// repository in memory
type memRateLimitStore struct {
	records map[string]*models.RateLimitRecord
	getErr  error
	incErr  error
	lockErr error
}

func newMemRateLimitStore() *memRateLimitStore {
	return &memRateLimitStore{records: make(map[string]*models.RateLimitRecord)}
}

func (m *memRateLimitStore) Get(_ context.Context, ip string) (*models.RateLimitRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[ip]
	if !ok {
		return nil, models.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (m *memRateLimitStore) IncrementAttempt(_ context.Context, ip string, kind models.AttemptKind, now, windowStart time.Time) (*models.RateLimitRecord, error) {
	if m.incErr != nil {
		return nil, m.incErr
	}

	rec, ok := m.records[ip]
	if !ok {
		rec = &models.RateLimitRecord{IPAddress: ip}
		m.records[ip] = rec
	}

	reset := !ok || rec.LastAttempt.Before(windowStart)
	if kind == models.AttemptKindLogin {
		if reset {
			rec.LoginAttempts = 1
		} else {
			rec.LoginAttempts++
		}
	} else {
		if reset {
			rec.CommentAttempts = 1
		} else {
			rec.CommentAttempts++
		}
	}
	if reset {
		rec.LockedUntil = nil
	}
	rec.LastAttempt = now

	clone := *rec
	return &clone, nil
}

func (m *memRateLimitStore) Lock(_ context.Context, ip string, until time.Time) error {
	if m.lockErr != nil {
		return m.lockErr
	}
	if rec, ok := m.records[ip]; ok {
		rec.LockedUntil = &until
	}
	return nil
}

func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		CommentMaxAttempts: 3,
		CommentWindow:      10 * time.Minute,
		LoginMaxAttempts:   5,
		LoginWindow:        15 * time.Minute,
		LockoutDuration:    1 * time.Hour,
	}
}

func newTestLimiter(store RateLimitStore) *RateLimitService {
	return NewRateLimitService(store, testSecurityConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRateLimitService_AllowsWithinBudget(t *testing.T) {
	store := newMemRateLimitStore()
	limiter := newTestLimiter(store)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		decision := limiter.CheckAndRecord(ctx, "198.51.100.7", models.AttemptKindLogin)
		assert.True(t, decision.Allowed, "attempt %d should be allowed", i)
		assert.Equal(t, 5-i, decision.Remaining)
	}
}

func TestRateLimitService_AttemptOverBudgetTriggersLockout(t *testing.T) {
	store := newMemRateLimitStore()
	limiter := newTestLimiter(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, limiter.CheckAndRecord(ctx, "198.51.100.7", models.AttemptKindLogin).Allowed)
	}

	decision := limiter.CheckAndRecord(ctx, "198.51.100.7", models.AttemptKindLogin)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "rate_limited", decision.Reason)
	assert.Equal(t, 3600, decision.RetryAfterSeconds)

	rec := store.records["198.51.100.7"]
	require.NotNil(t, rec.LockedUntil)
}

func TestRateLimitService_ActiveLockoutDeniesWithoutCounting(t *testing.T) {
	store := newMemRateLimitStore()
	limiter := newTestLimiter(store)
	now := time.Now()
	limiter.nowFunc = func() time.Time { return now }

	lockedUntil := now.Add(30 * time.Minute)
	store.records["198.51.100.7"] = &models.RateLimitRecord{
		IPAddress:     "198.51.100.7",
		LoginAttempts: 6,
		LastAttempt:   now.Add(-1 * time.Minute),
		LockedUntil:   &lockedUntil,
	}

	decision := limiter.CheckAndRecord(context.Background(), "198.51.100.7", models.AttemptKindLogin)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "locked_out", decision.Reason)
	assert.InDelta(t, 1800, decision.RetryAfterSeconds, 2)

	// The denied attempt did not consume budget
	assert.Equal(t, 6, store.records["198.51.100.7"].LoginAttempts)
}

func TestRateLimitService_WindowLapseResetsCounter(t *testing.T) {
	store := newMemRateLimitStore()
	limiter := newTestLimiter(store)
	base := time.Now()
	limiter.nowFunc = func() time.Time { return base }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, limiter.CheckAndRecord(ctx, "203.0.113.9", models.AttemptKindComment).Allowed)
	}
	assert.Equal(t, 3, store.records["203.0.113.9"].CommentAttempts)

	// Past the 10 minute comment window the counter starts over at 1
	limiter.nowFunc = func() time.Time { return base.Add(11 * time.Minute) }
	decision := limiter.CheckAndRecord(ctx, "203.0.113.9", models.AttemptKindComment)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, store.records["203.0.113.9"].CommentAttempts)
	assert.Equal(t, 2, decision.Remaining)
}

func TestRateLimitService_ExpiredLockoutClearsOnNextAttempt(t *testing.T) {
	store := newMemRateLimitStore()
	limiter := newTestLimiter(store)
	now := time.Now()
	limiter.nowFunc = func() time.Time { return now }

	lockedUntil := now.Add(-1 * time.Minute)
	store.records["198.51.100.7"] = &models.RateLimitRecord{
		IPAddress:     "198.51.100.7",
		LoginAttempts: 6,
		LastAttempt:   now.Add(-2 * time.Hour),
		LockedUntil:   &lockedUntil,
	}

	decision := limiter.CheckAndRecord(context.Background(), "198.51.100.7", models.AttemptKindLogin)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, store.records["198.51.100.7"].LoginAttempts)
	assert.Nil(t, store.records["198.51.100.7"].LockedUntil)
}

func TestRateLimitService_KindsHaveIndependentBudgets(t *testing.T) {
	store := newMemRateLimitStore()
	limiter := newTestLimiter(store)
	ctx := context.Background()

	// Exhaust the comment budget
	for i := 0; i < 3; i++ {
		require.True(t, limiter.CheckAndRecord(ctx, "203.0.113.9", models.AttemptKindComment).Allowed)
	}

	// Login budget for the same IP is untouched
	decision := limiter.CheckAndRecord(ctx, "203.0.113.9", models.AttemptKindLogin)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 4, decision.Remaining)
}

func TestRateLimitService_FailsOpenOnGetError(t *testing.T) {
	store := newMemRateLimitStore()
	store.getErr = errors.New("connection refused")
	limiter := newTestLimiter(store)

	decision := limiter.CheckAndRecord(context.Background(), "198.51.100.7", models.AttemptKindLogin)
	assert.True(t, decision.Allowed)
	assert.Equal(t, "store_unavailable", decision.Reason)
}

func TestRateLimitService_FailsOpenOnIncrementError(t *testing.T) {
	store := newMemRateLimitStore()
	store.incErr = errors.New("connection refused")
	limiter := newTestLimiter(store)

	decision := limiter.CheckAndRecord(context.Background(), "198.51.100.7", models.AttemptKindComment)
	assert.True(t, decision.Allowed)
	assert.Equal(t, "store_unavailable", decision.Reason)
}

func TestRateLimitService_DeniesEvenIfLockWriteFails(t *testing.T) {
	store := newMemRateLimitStore()
	store.lockErr = errors.New("connection refused")
	limiter := newTestLimiter(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, limiter.CheckAndRecord(ctx, "203.0.113.9", models.AttemptKindComment).Allowed)
	}

	// The over-budget attempt is still denied; only the lockout persistence
	// failed
	decision := limiter.CheckAndRecord(ctx, "203.0.113.9", models.AttemptKindComment)
	assert.False(t, decision.Allowed)
}
