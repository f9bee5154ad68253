package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/rmvisser/gatehouse/internal/config"
	"github.com/rmvisser/gatehouse/internal/models"
	"github.com/rmvisser/gatehouse/pkg/logger"
)

// EmailNotifier tells a moderator about comments that need attention
type EmailNotifier interface {
	NotifyNewComment(ctx context.Context, comment *models.Comment) error
}

// SESNotifier sends moderation notifications through Amazon SES
type SESNotifier struct {
	client *ses.Client
	cfg    config.EmailConfig
	logger *slog.Logger
}

// NewSESNotifier creates an SES-backed notifier
func NewSESNotifier(client *ses.Client, cfg config.EmailConfig, log *slog.Logger) *SESNotifier {
	return &SESNotifier{
		client: client,
		cfg:    cfg,
		logger: log,
	}
}

// NotifyNewComment emails the moderation inbox about a new submission. The
// comment body is not included; the moderator reviews it in the dashboard.
func (n *SESNotifier) NotifyNewComment(ctx context.Context, comment *models.Comment) error {
	subject := fmt.Sprintf("[%s] New comment awaiting moderation", n.cfg.SiteName)
	if comment.Status == models.CommentStatusApproved {
		subject = fmt.Sprintf("[%s] New comment published", n.cfg.SiteName)
	}

	body := fmt.Sprintf(
		"A new comment was submitted on post %s.\n\nAuthor: %s (%s)\nStatus: %s\nSpam score: %.2f\n",
		comment.BlogID,
		comment.AuthorName,
		logger.SanitizedEmail(comment.AuthorEmail),
		comment.Status,
		comment.SpamScore,
	)
	if n.cfg.DashboardURL != "" {
		body += fmt.Sprintf("\nReview: %s\n", n.cfg.DashboardURL)
	}

	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(n.cfg.FromAddress),
		Destination: &sestypes.Destination{
			ToAddresses: []string{n.cfg.NotificationAddr},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send notification email: %w", err)
	}

	n.logger.Info("moderation notification sent",
		slog.String("comment_id", comment.ID),
		slog.String("status", comment.Status),
	)
	return nil
}
