package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/liff-store/internal/config"
	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/events"
	"github.com/noah-isme/liff-store/internal/lock"
	"github.com/noah-isme/liff-store/internal/obs"
)

// Dependencies enumerates the infrastructure shared across modules. Redis is optional: without
// it locks run locally, caches and idempotency are off and rate limits fall back to memory.
type Dependencies struct {
	Config      *config.Config
	Store       db.Store
	Redis       redis.UniversalClient
	Logger      zerolog.Logger
	Notifiers   []events.Notifier
	HTTPMetrics *obs.HTTPMetrics
	Registry    prometheus.Gatherer
	Tracing     bool
	Now         func() time.Time
}

// NewLimiterStore returns the login limiter store: Redis when configured, process memory
// otherwise.
func NewLimiterStore(rdb redis.UniversalClient) (limiter.Store, error) {
	opts := limiter.StoreOptions{Prefix: "ratelimit:login", CleanUpInterval: time.Minute}
	if rdb == nil {
		return memory.NewStoreWithOptions(opts), nil
	}
	return limiterredis.NewStoreWithOptions(rdb, opts)
}

// NewLoginLimiter builds the per-IP admin login limiter from a formatted rate such as "5-M".
func NewLoginLimiter(rdb redis.UniversalClient, formatted string) (*limiter.Limiter, error) {
	if formatted == "" {
		return nil, nil
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parse login rate %q: %w", formatted, err)
	}
	store, err := NewLimiterStore(rdb)
	if err != nil {
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	return limiter.New(store, rate), nil
}

// NewLocker picks the member lock implementation.
func NewLocker(rdb redis.UniversalClient, wait time.Duration) lock.Runner {
	if rdb == nil {
		return lock.Local{}
	}
	return lock.Locker{R: rdb, RetryBackoff: 25 * time.Millisecond, MaxWait: wait}
}

func (d Dependencies) ping(ctx context.Context) error {
	if d.Store == nil {
		return fmt.Errorf("app: store is required")
	}
	return d.Store.Ping(ctx)
}
