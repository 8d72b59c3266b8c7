package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	CORSAllowedOrigins []string

	AccessTokenTTL time.Duration
	OTPTTL         time.Duration
	ResetTokenTTL  time.Duration
	IdempotencyTTL time.Duration

	PaginationDefaultLimit int
	PaginationMaxLimit     int
	ProductNamesCacheTTL   time.Duration
	EarningsCacheTTL       time.Duration

	BillingRetryMaxElapsed time.Duration
	DBAutoMigrate          bool
	DBConnectTimeout       time.Duration
	DBMaxConns             int

	RateLimitAuthMax    int
	RateLimitAuthWindow time.Duration
	RateLimitGlobal     string

	MailFrom     string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
	MailQueue    string
	MailMaxRetry int

	WorkerConcurrency int

	HTTPBodyLimitBytes     int64
	SecurityHeadersEnabled bool
	AuditEnabled           bool
	LockRetryBackoff       time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		AccessTokenTTL: parseDuration(k.String("ACCESS_TOKEN_TTL"), "12h"),
		OTPTTL:         parseDuration(k.String("OTP_TTL"), "10m"),
		ResetTokenTTL:  parseDuration(k.String("RESET_TOKEN_TTL"), "15m"),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		PaginationDefaultLimit: parseInt(k.String("PAGINATION_DEFAULT_LIMIT"), 10),
		PaginationMaxLimit:     parseInt(k.String("PAGINATION_MAX_LIMIT"), 100),
		ProductNamesCacheTTL:   parseDuration(k.String("PRODUCT_NAMES_CACHE_TTL"), "5m"),
		EarningsCacheTTL:       parseDuration(k.String("EARNINGS_CACHE_TTL"), "1h"),

		BillingRetryMaxElapsed: parseDuration(k.String("BILLING_RETRY_MAX_ELAPSED"), "2s"),
		DBAutoMigrate:          parseBool(k.String("DB_AUTO_MIGRATE")),
		DBConnectTimeout:       parseDuration(k.String("DB_CONNECT_TIMEOUT"), "30s"),
		DBMaxConns:             parseInt(k.String("DB_MAX_CONNS"), 0),

		RateLimitAuthMax:    parseInt(k.String("RATE_LIMIT_AUTH_MAX"), 10),
		RateLimitAuthWindow: parseDuration(k.String("RATE_LIMIT_AUTH_WINDOW"), "1m"),
		RateLimitGlobal:     valueOrDefault(k.String("RATE_LIMIT_GLOBAL"), "300-M"),

		MailFrom:     valueOrDefault(k.String("MAIL_FROM"), "no-reply@pos.local"),
		SMTPHost:     strings.TrimSpace(k.String("SMTP_HOST")),
		SMTPPort:     parseInt(k.String("SMTP_PORT"), 587),
		SMTPUser:     k.String("SMTP_USER"),
		SMTPPass:     k.String("SMTP_PASS"),
		MailQueue:    valueOrDefault(k.String("MAIL_QUEUE"), "mail"),
		MailMaxRetry: parseInt(k.String("MAIL_MAX_RETRY"), 5),

		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),

		HTTPBodyLimitBytes:     int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeadersEnabled: parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
		AuditEnabled:           parseBoolDefault(k.String("AUDIT_ENABLED"), true),
		LockRetryBackoff:       parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
	}

	if cfg.PaginationMaxLimit < 1 {
		cfg.PaginationMaxLimit = 100
	}
	if cfg.PaginationDefaultLimit < 1 || cfg.PaginationDefaultLimit > cfg.PaginationMaxLimit {
		cfg.PaginationDefaultLimit = min(10, cfg.PaginationMaxLimit)
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// SMTPAddr returns host:port for the SMTP relay, or empty when mail is logged only.
func (c *Config) SMTPAddr() string {
	if c.SMTPHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.SMTPHost, c.SMTPPort)
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
