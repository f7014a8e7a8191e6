package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/liff-store/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"DATABASE_URL":          "memory://",
		"JWT_SECRET":            "secret",
		"VIP_ACCRUAL_MODE":      "",
		"VIP_REVERSE_ON_CANCEL": "",
		"PORT":                  "",
		"KAFKA_BROKERS":         "",
		"MEMBER_LOCK_TTL":       "",
	})
	require.NoError(t, err)
	require.True(t, cfg.InMemory())
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "checkout", cfg.VIPAccrualMode)
	require.False(t, cfg.VIPReverseOnCancel)
	require.Equal(t, 10*time.Second, cfg.MemberLockTTL)
	require.Empty(t, cfg.KafkaBrokers)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"DATABASE_URL":               "postgres://localhost/liff",
		"JWT_SECRET":                 "secret",
		"VIP_ACCRUAL_MODE":           "PAID",
		"VIP_REVERSE_ON_CANCEL":      "true",
		"COUPON_VALIDATE_RATE_LIMIT": "5",
		"KAFKA_BROKERS":              "k1:9092, k2:9092",
		"CATALOG_CACHE_TTL":          "bogus",
	})
	require.NoError(t, err)
	require.False(t, cfg.InMemory())
	require.Equal(t, "paid", cfg.VIPAccrualMode)
	require.True(t, cfg.VIPReverseOnCancel)
	require.Equal(t, 5, cfg.CouponValidateRateLimit)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{"DATABASE_URL": "", "JWT_SECRET": "secret"})
	require.Error(t, err)

	_, err = config.LoadForTests(map[string]string{"DATABASE_URL": "memory://", "JWT_SECRET": "secret", "VIP_ACCRUAL_MODE": "weekly"})
	require.Error(t, err)
}
