package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rmvisser/gatehouse/internal/config"
	"github.com/rmvisser/gatehouse/internal/models"
)

// RateLimitStore is the persistence interface the rate limiter needs
type RateLimitStore interface {
	Get(ctx context.Context, ipAddress string) (*models.RateLimitRecord, error)
	IncrementAttempt(ctx context.Context, ipAddress string, kind models.AttemptKind, now, windowStart time.Time) (*models.RateLimitRecord, error)
	Lock(ctx context.Context, ipAddress string, until time.Time) error
}

// RateLimitError carries the retry hint for a denied attempt
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %d seconds", e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error {
	return models.ErrRateLimitExceeded
}

// attemptLimit is the per-kind budget
type attemptLimit struct {
	max    int
	window time.Duration
}

// RateLimitService enforces per-IP attempt budgets with a shared lockout.
// A storage failure never blocks a request: the limiter is a defense layer,
// not a dependency, so it fails open and logs instead.
type RateLimitService struct {
	store   RateLimitStore
	limits  map[models.AttemptKind]attemptLimit
	lockout time.Duration
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewRateLimitService creates a rate limit service from the security config
func NewRateLimitService(store RateLimitStore, cfg config.SecurityConfig, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		store: store,
		limits: map[models.AttemptKind]attemptLimit{
			models.AttemptKindComment: {max: cfg.CommentMaxAttempts, window: cfg.CommentWindow},
			models.AttemptKindLogin:   {max: cfg.LoginMaxAttempts, window: cfg.LoginWindow},
		},
		lockout: cfg.LockoutDuration,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// CheckAndRecord counts one attempt of the given kind for the IP and decides
// whether it may proceed. The budget itself is inclusive: all max attempts
// inside a window are allowed, and the attempt after that triggers the
// lockout. Checking and recording are a single operation so a caller cannot
// probe its remaining budget without spending it.
func (s *RateLimitService) CheckAndRecord(ctx context.Context, ipAddress string, kind models.AttemptKind) *models.RateLimitDecision {
	now := s.nowFunc()

	limit, ok := s.limits[kind]
	if !ok {
		s.logger.Error("unknown attempt kind", slog.String("kind", string(kind)))
		return &models.RateLimitDecision{Allowed: true}
	}

	// An active lockout denies before any counting happens
	rec, err := s.store.Get(ctx, ipAddress)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return s.failOpen(err, ipAddress)
	}
	if rec != nil && rec.LockedUntil != nil && rec.LockedUntil.After(now) {
		retry := int(rec.LockedUntil.Sub(now).Seconds())
		if retry < 1 {
			retry = 1
		}
		return &models.RateLimitDecision{
			Allowed:           false,
			Reason:            "locked_out",
			RetryAfterSeconds: retry,
		}
	}

	rec, err = s.store.IncrementAttempt(ctx, ipAddress, kind, now, now.Add(-limit.window))
	if err != nil {
		return s.failOpen(err, ipAddress)
	}

	attempts := rec.AttemptsFor(kind)
	if attempts > limit.max {
		until := now.Add(s.lockout)
		if err := s.store.Lock(ctx, ipAddress, until); err != nil {
			s.logger.Error("failed to set lockout",
				slog.String("ip_address", ipAddress),
				slog.Any("error", err),
			)
		}
		s.logger.Warn("rate limit lockout triggered",
			slog.String("ip_address", ipAddress),
			slog.String("kind", string(kind)),
			slog.Int("attempts", attempts),
		)
		return &models.RateLimitDecision{
			Allowed:           false,
			Reason:            "rate_limited",
			RetryAfterSeconds: int(s.lockout.Seconds()),
		}
	}

	return &models.RateLimitDecision{
		Allowed:   true,
		Remaining: limit.max - attempts,
	}
}

// failOpen logs a storage failure and lets the request through
func (s *RateLimitService) failOpen(err error, ipAddress string) *models.RateLimitDecision {
	s.logger.Error("rate limit store unavailable, failing open",
		slog.String("ip_address", ipAddress),
		slog.Any("error", err),
	)
	return &models.RateLimitDecision{Allowed: true, Reason: "store_unavailable"}
}
