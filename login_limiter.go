package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	errLimiterExceeded    = errors.New("attempt limit exceeded")
	errLimiterUnavailable = errors.New("limiter redis unavailable")
)

// fixedWindowLimiter counts failed attempts per subject in Redis. The first
// failure arms the cooldown window; Reset clears the counter on success.
type fixedWindowLimiter struct {
	redis    *redis.Client
	prefix   string
	scope    string
	max      int
	cooldown time.Duration
}

func newFixedWindowLimiter(redisClient *redis.Client, prefix, scope string, max int, cooldown time.Duration) *fixedWindowLimiter {
	return &fixedWindowLimiter{
		redis:    redisClient,
		prefix:   prefix,
		scope:    scope,
		max:      max,
		cooldown: cooldown,
	}
}

func (l *fixedWindowLimiter) key(subject string) string {
	return l.prefix + ":" + l.scope + ":" + subject
}

func (l *fixedWindowLimiter) Check(ctx context.Context, subjects ...string) error {
	if l == nil {
		return nil
	}
	for _, subject := range subjects {
		if subject == "" {
			continue
		}
		count, err := l.redis.Get(ctx, l.key(subject)).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %v", errLimiterUnavailable, err)
		}
		if count >= int64(l.max) {
			return errLimiterExceeded
		}
	}
	return nil
}

func (l *fixedWindowLimiter) RecordFailure(ctx context.Context, subjects ...string) error {
	if l == nil {
		return nil
	}
	for _, subject := range subjects {
		if subject == "" {
			continue
		}
		count, err := l.redis.Incr(ctx, l.key(subject)).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", errLimiterUnavailable, err)
		}
		if count == 1 {
			if err := l.redis.Expire(ctx, l.key(subject), l.cooldown).Err(); err != nil {
				return fmt.Errorf("%w: %v", errLimiterUnavailable, err)
			}
		}
	}
	return nil
}

func (l *fixedWindowLimiter) Reset(ctx context.Context, subjects ...string) error {
	if l == nil {
		return nil
	}
	for _, subject := range subjects {
		if subject == "" {
			continue
		}
		if err := l.redis.Del(ctx, l.key(subject)).Err(); err != nil {
			return fmt.Errorf("%w: %v", errLimiterUnavailable, err)
		}
	}
	return nil
}
