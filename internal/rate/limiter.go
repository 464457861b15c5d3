package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goOTP/otp"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SlidingWindow implements otp.RateLimiter over a Redis sorted set per user.
type SlidingWindow struct {
	redis  redis.UniversalClient
	prefix string
	policy otp.Policy
}

// NewSlidingWindow creates a limiter enforcing policy.
func NewSlidingWindow(client redis.UniversalClient, prefix string, policy otp.Policy) *SlidingWindow {
	if prefix == "" {
		prefix = "otprl"
	}
	return &SlidingWindow{redis: client, prefix: prefix, policy: policy}
}

func (l *SlidingWindow) key(userID string) string {
	return l.prefix + ":" + userID
}

// Allow reports whether userID may request a code at now. It does not write.
func (l *SlidingWindow) Allow(ctx context.Context, userID string, now time.Time) (otp.Decision, error) {
	scores, err := l.redis.ZRangeByScoreWithScores(ctx, l.key(userID), &redis.ZRangeBy{
		Min: strconv.FormatInt(now.Add(-otp.Window).UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return otp.Decision{}, fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
	}

	created := make([]time.Time, 0, len(scores))
	for _, z := range scores {
		created = append(created, time.UnixMilli(int64(z.Score)))
	}
	return l.policy.Decide(created, now), nil
}

// Record counts a code issued at now.
func (l *SlidingWindow) Record(ctx context.Context, userID string, now time.Time) error {
	key := l.key(userID)
	member := strconv.FormatInt(now.UnixMilli(), 10) + ":" + uuid.NewString()

	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(now.Add(-otp.Window).UnixMilli(), 10))
		pipe.Expire(ctx, key, otp.Window+time.Second)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
	}
	return nil
}

// Reset clears the history of userID.
func (l *SlidingWindow) Reset(ctx context.Context, userID string) error {
	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
	}
	return nil
}
