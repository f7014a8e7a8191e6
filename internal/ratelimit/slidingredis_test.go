package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLimiterCouponValidateWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := Limiter{Client: client, Prefix: "ratelimit:"}

	ctx := context.Background()
	window := 2 * time.Second
	key := "coupon-validate:203.0.113.5"

	for i := 1; i <= 3; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, key, window, 3)
		require.NoError(t, err)
		require.True(t, allowed, "request %d", i)
		require.Equal(t, 3-i, remaining)
	}

	allowed, remaining, reset, err := limiter.Allow(ctx, key, window, 3)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)
	require.True(t, reset.After(time.Now()))
	require.True(t, mr.Exists("ratelimit:"+key))

	other, _, _, err := limiter.Allow(ctx, "coupon-validate:198.51.100.7", window, 3)
	require.NoError(t, err)
	require.True(t, other, "limits are per client")

	mr.FastForward(window)
	allowed, _, _, err = limiter.Allow(ctx, key, window, 3)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestLimiterWithoutRedisAllowsEverything(t *testing.T) {
	allowed, remaining, _, err := Limiter{}.Allow(context.Background(), "coupon-validate:x", time.Minute, 5)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 5, remaining)
}
