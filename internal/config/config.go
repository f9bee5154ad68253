package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Security SecurityConfig
	Spam     SpamConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type SecurityConfig struct {
	SessionCookieName   string
	SessionLifetime     time.Duration
	SessionRotateAfter  time.Duration
	CSRFTokenLifetime   time.Duration
	CommentMaxAttempts  int
	CommentWindow       time.Duration
	LoginMaxAttempts    int
	LoginWindow         time.Duration
	LockoutDuration     time.Duration
	IPRetention         time.Duration
	CleanupInterval     time.Duration
	LoginDelayBaseMs    int
	LoginDelayRandomMs  int
	TOTPIssuer          string
}

type SpamConfig struct {
	Keywords        []string
	MaxLinksAllowed int
	HoneypotField   string
	RejectThreshold float64
	CommentMinLen   int
	CommentMaxLen   int
	TrustedEmails   []string
}

type EmailConfig struct {
	Enabled           bool
	AWSRegion         string
	FromAddress       string
	NotificationAddr  string
	SiteName          string
	DashboardURL      string
}

// defaultSpamKeywords is the stock keyword list; override with SPAM_KEYWORDS
// (comma-separated) when the site attracts a different flavour of spam.
var defaultSpamKeywords = []string{
	"viagra", "cialis", "casino", "poker", "lottery",
	"click here", "buy now", "limited offer", "act now",
	"pills", "pharmacy", "discount", "free money",
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatehouse"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Security: SecurityConfig{
			SessionCookieName:  getEnv("SESSION_COOKIE_NAME", "gatehouse_session"),
			SessionLifetime:    getEnvAsDuration("SESSION_LIFETIME", 1*time.Hour),
			SessionRotateAfter: getEnvAsDuration("SESSION_ROTATE_AFTER", 30*time.Minute),
			CSRFTokenLifetime:  getEnvAsDuration("CSRF_TOKEN_LIFETIME", 2*time.Hour),
			CommentMaxAttempts: getEnvAsInt("RATE_LIMIT_COMMENTS", 3),
			CommentWindow:      getEnvAsDuration("RATE_LIMIT_COMMENT_WINDOW", 10*time.Minute),
			LoginMaxAttempts:   getEnvAsInt("RATE_LIMIT_LOGIN", 5),
			LoginWindow:        getEnvAsDuration("RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute),
			LockoutDuration:    getEnvAsDuration("LOCKOUT_DURATION", 1*time.Hour),
			IPRetention:        getEnvAsDuration("IP_RETENTION", 30*24*time.Hour),
			CleanupInterval:    getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			LoginDelayBaseMs:   getEnvAsInt("LOGIN_DELAY_BASE_MS", 200),
			LoginDelayRandomMs: getEnvAsInt("LOGIN_DELAY_RANDOM_MS", 200),
			TOTPIssuer:         getEnv("TOTP_ISSUER", "Gatehouse"),
		},
		Spam: SpamConfig{
			Keywords:        getEnvAsList("SPAM_KEYWORDS", defaultSpamKeywords),
			MaxLinksAllowed: getEnvAsInt("MAX_LINKS_ALLOWED", 1),
			HoneypotField:   getEnv("HONEYPOT_FIELD", "website_url"),
			RejectThreshold: getEnvAsFloat("SPAM_REJECT_THRESHOLD", 0.8),
			CommentMinLen:   getEnvAsInt("COMMENT_MIN_LENGTH", 10),
			CommentMaxLen:   getEnvAsInt("COMMENT_MAX_LENGTH", 1000),
			TrustedEmails:   getEnvAsList("TRUSTED_EMAILS", nil),
		},
		Email: EmailConfig{
			Enabled:          getEnvAsBool("EMAIL_NOTIFICATIONS", false),
			AWSRegion:        getEnv("AWS_REGION", "eu-west-1"),
			FromAddress:      getEnv("EMAIL_FROM", ""),
			NotificationAddr: getEnv("NOTIFICATION_EMAIL", ""),
			SiteName:         getEnv("SITE_NAME", "Gatehouse"),
			DashboardURL:     getEnv("DASHBOARD_URL", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if cfg.Email.Enabled && (cfg.Email.FromAddress == "" || cfg.Email.NotificationAddr == "") {
		return nil, fmt.Errorf("EMAIL_FROM and NOTIFICATION_EMAIL are required when EMAIL_NOTIFICATIONS is enabled")
	}

	if err := validateSecurity(&cfg.Security); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity rejects settings that would silently disable a defense
func validateSecurity(sec *SecurityConfig) error {
	if sec.CommentMaxAttempts < 1 || sec.LoginMaxAttempts < 1 {
		return fmt.Errorf("rate limit maximums must be at least 1")
	}
	if sec.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive")
	}
	if sec.SessionRotateAfter >= sec.SessionLifetime {
		return fmt.Errorf("SESSION_ROTATE_AFTER must be shorter than SESSION_LIFETIME")
	}
	if sec.CSRFTokenLifetime <= 0 {
		return fmt.Errorf("CSRF_TOKEN_LIFETIME must be positive")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		return parts
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
