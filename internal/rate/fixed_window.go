package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis failures of a FixedWindow.
var ErrUnavailable = errors.New("rate limiter unavailable")

// FixedWindow caps requests per key within fixed windows. The first hit of a
// window sets the key's expiry; later hits only increment it.
type FixedWindow struct {
	redis  redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewFixedWindow returns a limiter admitting limit hits per key every window.
func NewFixedWindow(client redis.UniversalClient, prefix string, limit int, window time.Duration) *FixedWindow {
	if prefix == "" {
		prefix = "iprl"
	}
	if window <= 0 {
		window = time.Minute
	}
	return &FixedWindow{redis: client, prefix: prefix, limit: limit, window: window}
}

// Limit returns the number of hits admitted per window.
func (l *FixedWindow) Limit() int { return l.limit }

func (l *FixedWindow) key(k string) string {
	return l.prefix + ":" + k
}

// Hit counts one request for key. Once the window holds more than the limit it
// reports false together with the time left until the window resets.
func (l *FixedWindow) Hit(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.key(key)
	count, err := l.incrementWithTTL(ctx, k)
	if err != nil {
		return false, 0, err
	}
	if count <= int64(l.limit) {
		return true, 0, nil
	}

	ttl, err := l.redis.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl <= 0 {
		// EXPIRE after the first INCR failed, so the counter never resets on its own.
		if err := l.redis.PExpire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		ttl = l.window
	}
	return false, ttl, nil
}

// Reset clears the counter of key.
func (l *FixedWindow) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *FixedWindow) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.PExpire(ctx, key, l.window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}
