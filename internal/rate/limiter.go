// Package rate implements the fixed-window login attempt counter on Redis.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps backend failures so callers can fail closed
// without inspecting driver errors.
var ErrRedisUnavailable = errors.New("rate limiter backend unavailable")

type Config struct {
	MaxAttempts int
	Window      time.Duration
	KeyPrefix   string
}

// Limiter counts attempts per key in a fixed window: INCR, with the expiry
// set only when the counter is created. Safe for concurrent use.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "cl:la:"
	}
	return &Limiter{
		redis:  client,
		config: cfg,
	}
}

// CheckAndIncrement charges one attempt against key and returns the new
// count for the current window.
func (l *Limiter) CheckAndIncrement(ctx context.Context, key string) (int64, error) {
	k := l.config.KeyPrefix + key

	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// Clear removes the counter for key, forgiving all attempts in the window.
func (l *Limiter) Clear(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.config.KeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts reports the current count for key without charging an attempt.
func (l *Limiter) Attempts(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Get(ctx, l.config.KeyPrefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

// Max returns the configured attempt ceiling.
func (l *Limiter) Max() int {
	return l.config.MaxAttempts
}
