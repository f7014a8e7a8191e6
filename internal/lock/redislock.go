// Package lock serialises work on a key across API instances.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/liff-store/internal/resilience"
)

// Runner runs fn while holding the lock for key.
type Runner interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// ErrTimeout is returned when the lock stays held by someone else for longer than MaxWait.
var ErrTimeout = errors.New("lock: timed out waiting for lock")

// MemberKey names the lock guarding writes to one member's spend and orders.
func MemberKey(userID string) string {
	return "lock:member:" + strings.TrimSpace(userID)
}

// SettleKey names the lock guarding an export-and-settle run.
const SettleKey = "lock:export:settle"

// Locker provides a Redis-backed distributed lock.
type Locker struct {
	R            redis.UniversalClient
	// RetryBackoff is the first poll delay. Later polls back off exponentially up to 8x.
	RetryBackoff time.Duration
	// MaxWait bounds how long WithLock polls for a held key. Zero waits until ctx is done.
	MaxWait time.Duration
}

// WithLock executes fn while holding a lock for the provided key. The lock is
// released automatically even if fn returns an error.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	var deadline time.Time
	if l.MaxWait > 0 {
		deadline = time.Now().Add(l.MaxWait)
	}

	for attempt := 1; ; attempt++ {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			defer l.release(context.WithoutCancel(ctx), key, token)
			return fn(ctx)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrTimeout
		}
		timer := time.NewTimer(resilience.Backoff(retry, min(attempt, 4), 0.2))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l Locker) release(ctx context.Context, key, token string) {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	if err := l.R.Eval(ctx, script, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}

// Local runs fn directly. It is used when Redis is not configured; the repository transaction
// is then the only serialisation point.
type Local struct{}

// WithLock calls fn.
func (Local) WithLock(ctx context.Context, _ string, _ time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	return fn(ctx)
}
