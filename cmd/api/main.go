package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rmvisser/gatehouse/internal/background"
	"github.com/rmvisser/gatehouse/internal/config"
	"github.com/rmvisser/gatehouse/internal/database"
	"github.com/rmvisser/gatehouse/internal/handlers"
	middlewareCustom "github.com/rmvisser/gatehouse/internal/middleware"
	"github.com/rmvisser/gatehouse/internal/models"
	"github.com/rmvisser/gatehouse/internal/repositories"
	"github.com/rmvisser/gatehouse/internal/routes"
	"github.com/rmvisser/gatehouse/internal/security"
	"github.com/rmvisser/gatehouse/internal/services"
	"github.com/rmvisser/gatehouse/internal/spam"
	pkgauth "github.com/rmvisser/gatehouse/pkg/auth"
	pkglogger "github.com/rmvisser/gatehouse/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Run migrations before opening the pool
	if err := database.Migrate(cfg.Database.DSN()); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	sessionRepo := repositories.NewSessionRepository(db)
	rateLimitRepo := repositories.NewRateLimitRepository(db)
	commentRepo := repositories.NewCommentRepository(db)
	adminRepo := repositories.NewAdminRepository(db)

	// Initialize security services
	auditLogger := pkglogger.NewAuditLogger(logger)

	sessionGuard := security.NewSessionGuard(sessionRepo, security.GuardConfig{
		CookieName:  cfg.Security.SessionCookieName,
		Lifetime:    cfg.Security.SessionLifetime,
		RotateAfter: cfg.Security.SessionRotateAfter,
	}, logger)

	tokenStore := security.NewTokenStore(sessionRepo, cfg.Security.CSRFTokenLifetime)

	timingDelay := security.NewTimingDelay(security.TimingConfig{
		BaseDelayMs:   cfg.Security.LoginDelayBaseMs,
		RandomDelayMs: cfg.Security.LoginDelayRandomMs,
	})

	totpManager := security.NewTOTPManager(cfg.Security.TOTPIssuer)

	rateLimitService := services.NewRateLimitService(rateLimitRepo, cfg.Security, logger)

	scorer := spam.NewScorer(cfg.Spam.Keywords, cfg.Spam.MaxLinksAllowed)

	// AWS SES notifier, only when notifications are enabled
	var notifier services.EmailNotifier
	if cfg.Email.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Email.AWSRegion))
		if err != nil {
			logger.Error("failed to load AWS configuration", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = services.NewSESNotifier(ses.NewFromConfig(awsCfg), cfg.Email, logger)
	}

	// Initialize services
	commentService := services.NewCommentService(
		commentRepo,
		rateLimitService,
		tokenStore,
		scorer,
		notifier,
		cfg.Spam,
		auditLogger,
		logger,
	)
	authService := services.NewAuthService(
		adminRepo,
		sessionGuard,
		tokenStore,
		rateLimitService,
		totpManager,
		timingDelay,
		auditLogger,
		logger,
	)

	// Initialize handlers
	commentHandler := handlers.NewCommentHandler(commentService, tokenStore, cfg.Spam.HoneypotField, logger)
	adminHandler := handlers.NewAdminHandler(authService, commentService, sessionGuard, tokenStore, logger)

	// Bootstrap first admin account if configured
	bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(bootstrapCtx, adminRepo, logger); err != nil {
		logger.Error("failed to ensure admin account", slog.Any("error", err))
	}
	bootstrapCancel()

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(
		sessionRepo,
		rateLimitRepo,
		commentRepo,
		logger,
		cfg.Security.CleanupInterval,
		cfg.Security.SessionLifetime,
		cfg.Security.IPRetention,
	)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middlewareCustom.Session(sessionGuard, logger))

	// Register routes
	routes.RegisterRoutes(router, commentHandler, adminHandler)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first moderator account when ADMIN_USERNAME,
// ADMIN_EMAIL and ADMIN_PASSWORD are set and no accounts exist yet
func ensureAdminUser(ctx context.Context, adminRepo *repositories.AdminRepository, logger *slog.Logger) error {
	username := os.Getenv("ADMIN_USERNAME")
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")

	if username == "" || email == "" || password == "" {
		logger.Info("admin bootstrap variables not set, skipping account creation")
		return nil
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		var validationErr *pkgauth.PasswordValidationError
		if errors.As(err, &validationErr) {
			for _, msg := range validationErr.Errors {
				logger.Error("admin bootstrap password rejected", slog.String("reason", msg))
			}
		}
		return fmt.Errorf("admin bootstrap password too weak")
	}

	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.AdminUser{
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		IsActive:     true,
	}
	created, err := adminRepo.CreateFirst(ctx, admin)
	if err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}
	if !created {
		logger.Info("admin accounts already exist, skipping bootstrap")
		return nil
	}

	logger.Info("admin account created", slog.String("username", username))
	return nil
}
