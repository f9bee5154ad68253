package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rmvisser/gatehouse/internal/models"
	"github.com/rmvisser/gatehouse/internal/security"
	"github.com/rmvisser/gatehouse/pkg/auth"
	"github.com/rmvisser/gatehouse/pkg/logger"
)

// AdminStore is the persistence interface the auth service needs
type AdminStore interface {
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	GetByID(ctx context.Context, id string) (*models.AdminUser, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetTOTP(ctx context.Context, id string, secret *string, enabled bool) error
}

// LoginRequest is the input to an admin login attempt
type LoginRequest struct {
	Username  string
	Password  string
	TOTPCode  string
	CSRFToken string
	IPAddress string
}

// AuthService authenticates moderators. Every failure path returns
// models.ErrUnauthorized so the response never reveals whether the username
// exists, the password was wrong, or the account is disabled; the audit log
// records the real reason.
type AuthService struct {
	admins  AdminStore
	guard   *security.SessionGuard
	tokens  *security.TokenStore
	limiter *RateLimitService
	totp    *security.TOTPManager
	delay   *security.TimingDelay
	audit   *logger.AuditLogger
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewAuthService creates an auth service
func NewAuthService(
	admins AdminStore,
	guard *security.SessionGuard,
	tokens *security.TokenStore,
	limiter *RateLimitService,
	totp *security.TOTPManager,
	delay *security.TimingDelay,
	audit *logger.AuditLogger,
	log *slog.Logger,
) *AuthService {
	return &AuthService{
		admins:  admins,
		guard:   guard,
		tokens:  tokens,
		limiter: limiter,
		totp:    totp,
		delay:   delay,
		audit:   audit,
		logger:  log,
		nowFunc: time.Now,
	}
}

// Login runs the credential gate: CSRF, rate limit, then credentials. On
// success the session is promoted to an authenticated admin session.
func (s *AuthService) Login(ctx context.Context, session *models.Session, req LoginRequest) (*models.AdminUser, error) {
	if !s.tokens.Validate(session, req.CSRFToken) {
		s.audit.LogDefenseEvent(logger.AuditEvent{
			EventType:     "csrf_rejected",
			IPAddress:     req.IPAddress,
			Success:       false,
			FailureReason: "missing or invalid token",
		})
		return nil, models.ErrCSRFInvalid
	}

	decision := s.limiter.CheckAndRecord(ctx, req.IPAddress, models.AttemptKindLogin)
	if !decision.Allowed {
		s.audit.LogAuthAttempt(logger.AuditEvent{
			EventType:     "login",
			AdminUsername: req.Username,
			IPAddress:     req.IPAddress,
			Success:       false,
			FailureReason: decision.Reason,
		})
		return nil, &RateLimitError{RetryAfterSeconds: decision.RetryAfterSeconds}
	}

	admin, err := s.admins.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.fail(req, "unknown username")
		}
		return nil, fmt.Errorf("failed to load admin account: %w", err)
	}

	if !admin.IsActive {
		return nil, s.fail(req, "account disabled")
	}

	if err := auth.ComparePassword(admin.PasswordHash, req.Password); err != nil {
		return nil, s.fail(req, "wrong password")
	}

	if admin.TOTPEnabled {
		if admin.TOTPSecret == nil || !s.totp.ValidateCode(*admin.TOTPSecret, req.TOTPCode) {
			return nil, s.fail(req, "invalid totp code")
		}
	}

	s.delay.Wait(true)

	// Session promotion fails closed: a login that cannot be recorded is not
	// a login
	if err := s.guard.Authenticate(ctx, session, admin); err != nil {
		return nil, err
	}

	if err := s.admins.UpdateLastLogin(ctx, admin.ID, s.nowFunc()); err != nil {
		s.logger.Warn("failed to update last login",
			slog.String("admin_id", admin.ID),
			slog.Any("error", err),
		)
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType:     "login",
		AdminUsername: admin.Username,
		IPAddress:     req.IPAddress,
		Success:       true,
	})

	return admin, nil
}

// fail applies the timing delay, records the real reason in the audit log,
// and returns the generic error
func (s *AuthService) fail(req LoginRequest, reason string) error {
	s.delay.Wait(false)
	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType:     "login",
		AdminUsername: req.Username,
		IPAddress:     req.IPAddress,
		Success:       false,
		FailureReason: reason,
	})
	return models.ErrUnauthorized
}

// SetupTOTP generates a second-factor secret for an admin and stores it
// disabled. The admin must confirm a code via EnableTOTP before it counts.
func (s *AuthService) SetupTOTP(ctx context.Context, adminID, username string) (secret, qrDataURL string, err error) {
	secret, qrDataURL, err = s.totp.GenerateSecret(username)
	if err != nil {
		return "", "", err
	}

	if err := s.admins.SetTOTP(ctx, adminID, &secret, false); err != nil {
		return "", "", fmt.Errorf("failed to store totp secret: %w", err)
	}

	return secret, qrDataURL, nil
}

// EnableTOTP turns on the second factor after the admin proves they can
// produce a valid code from the enrolled secret
func (s *AuthService) EnableTOTP(ctx context.Context, adminID, code string) error {
	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		return err
	}

	if admin.TOTPSecret == nil {
		return fmt.Errorf("%w: no totp secret enrolled", models.ErrBadRequest)
	}

	if !s.totp.ValidateCode(*admin.TOTPSecret, code) {
		return models.ErrUnauthorized
	}

	if err := s.admins.SetTOTP(ctx, adminID, admin.TOTPSecret, true); err != nil {
		return fmt.Errorf("failed to enable totp: %w", err)
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType:     "totp_enabled",
		AdminUsername: admin.Username,
		Success:       true,
	})
	return nil
}
