package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rmvisser/gatehouse/internal/config"
	"github.com/rmvisser/gatehouse/internal/models"
	"github.com/rmvisser/gatehouse/internal/security"
	"github.com/rmvisser/gatehouse/internal/spam"
	"github.com/rmvisser/gatehouse/pkg/logger"
)

// CommentStore is the persistence interface the comment service needs
type CommentStore interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	ListApprovedByBlog(ctx context.Context, blogID string) ([]*models.Comment, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]*models.Comment, error)
	UpdateStatus(ctx context.Context, id, fromStatus, toStatus, moderator string, at time.Time) error
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// ValidationError aggregates every field failure from a submission so the
// client sees the full list at once rather than one error per round trip
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

func (e *ValidationError) Unwrap() error {
	return models.ErrBadRequest
}

// CommentSubmission is the raw input to the submission gate
type CommentSubmission struct {
	BlogID      string `validate:"required,max=255"`
	AuthorName  string `validate:"required,min=2,max=100"`
	AuthorEmail string `validate:"required,email,max=255"`
	Body        string
	Honeypot    string
	CSRFToken   string
	IPAddress   string
	UserAgent   string
}

// CommentService runs every comment submission through the defense gate and
// handles moderation decisions on the stored comments
type CommentService struct {
	comments CommentStore
	limiter  *RateLimitService
	tokens   *security.TokenStore
	scorer   *spam.Scorer
	notifier EmailNotifier
	cfg      config.SpamConfig
	validate *validator.Validate
	audit    *logger.AuditLogger
	logger   *slog.Logger
	nowFunc  func() time.Time
}

// NewCommentService creates a comment service. notifier may be nil when email
// notifications are disabled.
func NewCommentService(
	comments CommentStore,
	limiter *RateLimitService,
	tokens *security.TokenStore,
	scorer *spam.Scorer,
	notifier EmailNotifier,
	cfg config.SpamConfig,
	audit *logger.AuditLogger,
	log *slog.Logger,
) *CommentService {
	return &CommentService{
		comments: comments,
		limiter:  limiter,
		tokens:   tokens,
		scorer:   scorer,
		notifier: notifier,
		cfg:      cfg,
		validate: validator.New(),
		audit:    audit,
		logger:   log,
		nowFunc:  time.Now,
	}
}

// Submit runs a submission through the gate in fixed order: honeypot, CSRF,
// rate limit, field validation, spam scoring, then persistence.
//
// A filled honeypot returns (nil, nil): the caller must respond exactly as it
// would for a stored comment, and nothing about the submission is processed
// or persisted. Bots get no signal that they were detected.
func (s *CommentService) Submit(ctx context.Context, session *models.Session, sub CommentSubmission) (*models.Comment, error) {
	if sub.Honeypot != "" {
		s.audit.LogDefenseEvent(logger.AuditEvent{
			EventType: "honeypot_triggered",
			IPAddress: sub.IPAddress,
			Success:   false,
		})
		return nil, nil
	}

	if !s.tokens.Validate(session, sub.CSRFToken) {
		s.audit.LogDefenseEvent(logger.AuditEvent{
			EventType:     "csrf_rejected",
			IPAddress:     sub.IPAddress,
			Success:       false,
			FailureReason: "missing or invalid token",
		})
		return nil, models.ErrCSRFInvalid
	}

	decision := s.limiter.CheckAndRecord(ctx, sub.IPAddress, models.AttemptKindComment)
	if !decision.Allowed {
		s.audit.LogDefenseEvent(logger.AuditEvent{
			EventType:     "rate_limit_denied",
			IPAddress:     sub.IPAddress,
			Success:       false,
			FailureReason: decision.Reason,
		})
		return nil, &RateLimitError{RetryAfterSeconds: decision.RetryAfterSeconds}
	}

	if err := s.validateSubmission(sub); err != nil {
		return nil, err
	}

	score := s.scorer.Score(sub.Body, sub.AuthorEmail, sub.AuthorName)
	status := s.decideStatus(sub.AuthorEmail, score)

	comment := &models.Comment{
		BlogID:      sub.BlogID,
		AuthorName:  strings.TrimSpace(sub.AuthorName),
		AuthorEmail: strings.TrimSpace(sub.AuthorEmail),
		Body:        strings.TrimSpace(sub.Body),
		Status:      status,
		SpamScore:   score,
		IPAddress:   optional(sub.IPAddress),
		UserAgent:   optional(sub.UserAgent),
	}

	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to store comment: %w", err)
	}

	s.logger.Info("comment submitted",
		slog.String("comment_id", comment.ID),
		slog.String("blog_id", comment.BlogID),
		slog.String("status", status),
		slog.Float64("spam_score", score),
		slog.String("author_email", logger.SanitizedEmail(comment.AuthorEmail)),
	)

	// Rejected comments are buried silently; notifying would invite appeals
	// from spammers
	if s.notifier != nil && status != models.CommentStatusRejected {
		if err := s.notifier.NotifyNewComment(ctx, comment); err != nil {
			s.logger.Error("failed to send comment notification",
				slog.String("comment_id", comment.ID),
				slog.Any("error", err),
			)
		}
	}

	return comment, nil
}

// validateSubmission collects every field failure before returning
func (s *CommentService) validateSubmission(sub CommentSubmission) error {
	var messages []string

	if err := s.validate.Struct(sub); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				messages = append(messages, fieldMessage(fe))
			}
		} else {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	body := strings.TrimSpace(sub.Body)
	if len(body) < s.cfg.CommentMinLen {
		messages = append(messages, fmt.Sprintf("comment must be at least %d characters", s.cfg.CommentMinLen))
	}
	if len(body) > s.cfg.CommentMaxLen {
		messages = append(messages, fmt.Sprintf("comment must be at most %d characters", s.cfg.CommentMaxLen))
	}

	if len(messages) > 0 {
		return &ValidationError{Messages: messages}
	}
	return nil
}

// fieldMessage turns a validator failure into a client-facing message
func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// decideStatus applies the auto-moderation rules
func (s *CommentService) decideStatus(email string, score float64) string {
	for _, trusted := range s.cfg.TrustedEmails {
		if strings.EqualFold(strings.TrimSpace(email), trusted) {
			return models.CommentStatusApproved
		}
	}
	if score > s.cfg.RejectThreshold {
		return models.CommentStatusRejected
	}
	return models.CommentStatusPending
}

// ListApproved returns the publicly visible comments for a blog post
func (s *CommentService) ListApproved(ctx context.Context, blogID string) ([]*models.Comment, error) {
	if strings.TrimSpace(blogID) == "" {
		return nil, models.ErrBadRequest
	}
	return s.comments.ListApprovedByBlog(ctx, blogID)
}

// ListPending returns the moderation queue, newest first
func (s *CommentService) ListPending(ctx context.Context, limit int) ([]*models.Comment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.comments.ListByStatus(ctx, models.CommentStatusPending, limit)
}

// QueueCounts returns comment counts per status for the dashboard
func (s *CommentService) QueueCounts(ctx context.Context) (map[string]int, error) {
	return s.comments.CountByStatus(ctx)
}

// Approve publishes a pending comment
func (s *CommentService) Approve(ctx context.Context, id, moderator string) error {
	return s.moderate(ctx, id, models.CommentStatusApproved, moderator, "approve")
}

// Reject hides a pending comment without deleting it
func (s *CommentService) Reject(ctx context.Context, id, moderator string) error {
	return s.moderate(ctx, id, models.CommentStatusRejected, moderator, "reject")
}

func (s *CommentService) moderate(ctx context.Context, id, toStatus, moderator, action string) error {
	comment, err := s.comments.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !models.ValidStatusTransition(comment.Status, toStatus) {
		return fmt.Errorf("%w: comment is %s", models.ErrConflict, comment.Status)
	}

	if err := s.comments.UpdateStatus(ctx, id, comment.Status, toStatus, moderator, s.nowFunc()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Another moderator got there first
			return fmt.Errorf("%w: comment already moderated", models.ErrConflict)
		}
		return err
	}

	ip := ""
	if comment.IPAddress != nil {
		ip = *comment.IPAddress
	}
	s.audit.LogModerationAction(moderator, id, action, ip)
	return nil
}

// Delete removes a comment in any status permanently
func (s *CommentService) Delete(ctx context.Context, id, moderator string) error {
	if err := s.comments.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.LogModerationAction(moderator, id, "delete", "")
	return nil
}

// optional returns nil for empty strings so they store as NULL
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
