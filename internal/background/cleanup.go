package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/rmvisser/gatehouse/internal/repositories"
	"github.com/rmvisser/gatehouse/pkg/logger"
)

// CleanupManager runs the periodic retention tasks: purging expired sessions,
// dropping stale rate limit counters, and anonymizing IPs on aged comments
type CleanupManager struct {
	sessions    *repositories.SessionRepository
	rateLimits  *repositories.RateLimitRepository
	comments    *repositories.CommentRepository
	logger      *slog.Logger
	interval    time.Duration
	sessionTTL  time.Duration
	ipRetention time.Duration
	stopCh      chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sessions *repositories.SessionRepository,
	rateLimits *repositories.RateLimitRepository,
	comments *repositories.CommentRepository,
	log *slog.Logger,
	interval, sessionTTL, ipRetention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		sessions:    sessions,
		rateLimits:  rateLimits,
		comments:    comments,
		logger:      log,
		interval:    interval,
		sessionTTL:  sessionTTL,
		ipRetention: ipRetention,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup executes one retention pass. Each task is independent; a failure
// in one does not skip the others.
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now()

	deleted, err := cm.sessions.DeleteExpired(cleanupCtx, now.Add(-cm.sessionTTL))
	if err != nil {
		cm.logger.Error("failed to purge expired sessions", slog.Any("error", err))
	} else if deleted > 0 {
		cm.logger.Info("expired sessions purged", slog.Int64("rows_deleted", deleted))
	}

	cutoff := now.Add(-cm.ipRetention)

	deleted, err = cm.rateLimits.DeleteStale(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to purge stale rate limit records", slog.Any("error", err))
	} else if deleted > 0 {
		cm.logger.Info("stale rate limit records purged", slog.Int64("rows_deleted", deleted))
	}

	cm.anonymizeCommentIPs(cleanupCtx, cutoff)
}

// anonymizeCommentIPs strips the host part of IPs on comments past the
// retention window. Already anonymized rows are left alone.
func (cm *CleanupManager) anonymizeCommentIPs(ctx context.Context, cutoff time.Time) {
	rows, err := cm.comments.ListStaleIPs(ctx, cutoff)
	if err != nil {
		cm.logger.Error("failed to list comments for ip anonymization", slog.Any("error", err))
		return
	}

	anonymized := 0
	for _, row := range rows {
		masked := logger.AnonymizeIP(row.IPAddress)
		if masked == row.IPAddress {
			continue
		}
		if err := cm.comments.SetIPAddress(ctx, row.ID, masked); err != nil {
			cm.logger.Error("failed to anonymize comment ip",
				slog.String("comment_id", row.ID),
				slog.Any("error", err),
			)
			continue
		}
		anonymized++
	}

	if anonymized > 0 {
		cm.logger.Info("comment ips anonymized", slog.Int("rows_updated", anonymized))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
