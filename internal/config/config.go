// Package config loads the storefront configuration from the environment.
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

// MemoryDatabaseURL selects the in-memory repository instead of PostgreSQL.
const MemoryDatabaseURL = "memory://"

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	AdminUsername      string
	AdminPasswordHash  string
	AccessTokenTTL     time.Duration
	LoginRateLimit     string
	CORSAllowedOrigins []string
	StoreTimezone      string

	VIPAccrualMode     string
	VIPReverseOnCancel bool

	CouponValidateRateLimit  int
	CouponValidateRateWindow time.Duration
	CatalogCacheTTL          time.Duration
	ReportCacheTTL           time.Duration
	IdempotencyTTL           time.Duration
	MemberLockTTL            time.Duration
	MemberLockWait           time.Duration
	HTTPBodyLimitBytes       int64
	ShutdownTimeout          time.Duration
	AuditEnabled             bool

	KafkaBrokers     []string
	KafkaEventsTopic string
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
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		JWTSecret:          k.String("JWT_SECRET"),
		AdminUsername:      valueOrDefault(k.String("ADMIN_USERNAME"), "admin"),
		AdminPasswordHash:  strings.TrimSpace(k.String("ADMIN_PASSWORD_HASH")),
		AccessTokenTTL:     parseDuration(k.String("ACCESS_TOKEN_TTL"), "12h"),
		LoginRateLimit:     valueOrDefault(k.String("ADMIN_LOGIN_RATE_LIMIT"), "5-M"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		StoreTimezone:      valueOrDefault(k.String("STORE_TIMEZONE"), "Asia/Taipei"),

		VIPAccrualMode:     valueOrDefault(strings.ToLower(k.String("VIP_ACCRUAL_MODE")), "checkout"),
		VIPReverseOnCancel: parseBool(k.String("VIP_REVERSE_ON_CANCEL")),

		CouponValidateRateLimit:  parseInt(k.String("COUPON_VALIDATE_RATE_LIMIT"), 30),
		CouponValidateRateWindow: parseDuration(k.String("COUPON_VALIDATE_RATE_WINDOW"), "1m"),
		CatalogCacheTTL:          parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		ReportCacheTTL:           parseDuration(k.String("REPORT_CACHE_TTL"), "1m"),
		IdempotencyTTL:           parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		MemberLockTTL:            parseDuration(k.String("MEMBER_LOCK_TTL"), "10s"),
		MemberLockWait:           parseDuration(k.String("MEMBER_LOCK_WAIT"), "5s"),
		HTTPBodyLimitBytes:       int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20)),
		ShutdownTimeout:          parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
		AuditEnabled:             parseBool(valueOrDefault(k.String("AUDIT_ENABLED"), "true")),

		KafkaBrokers:     splitAndTrim(k.String("KAFKA_BROKERS")),
		KafkaEventsTopic: valueOrDefault(k.String("KAFKA_EVENTS_TOPIC"), "liff-store.events"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.VIPAccrualMode != "checkout" && cfg.VIPAccrualMode != "paid" {
		return nil, fmt.Errorf("VIP_ACCRUAL_MODE must be checkout or paid, got %q", cfg.VIPAccrualMode)
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

// InMemory reports whether the in-memory repository is selected.
func (c *Config) InMemory() bool {
	return strings.EqualFold(c.DatabaseURL, MemoryDatabaseURL)
}

// Location resolves StoreTimezone, falling back to the process local zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.StoreTimezone)
	if err != nil {
		return time.Local
	}
	return loc
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
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
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
