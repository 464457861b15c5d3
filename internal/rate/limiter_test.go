package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goOTP/otp"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T) (*SlidingWindow, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewSlidingWindow(rdb, "rl", otp.Policy{Cooldown: time.Minute, MaxPerHour: 3}), mr
}

func TestSlidingWindowCooldown(t *testing.T) {
	l, _ := newLimiter(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	d, err := l.Allow(ctx, "u1", now)
	if err != nil || !d.CanRequest {
		t.Fatalf("fresh user refused: %+v err=%v", d, err)
	}
	if err := l.Record(ctx, "u1", now); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	d, err = l.Allow(ctx, "u1", now.Add(20*time.Second))
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if d.CanRequest || d.WaitSeconds != 40 {
		t.Fatalf("expected 40s cooldown, got %+v", d)
	}

	if d, _ := l.Allow(ctx, "u2", now); !d.CanRequest {
		t.Fatal("limits must be per user")
	}
}

func TestSlidingWindowHourlyCap(t *testing.T) {
	l, _ := newLimiter(t)
	ctx := context.Background()
	start := time.Unix(1_700_000_000, 0)

	for i := 0; i < 3; i++ {
		if err := l.Record(ctx, "u1", start.Add(time.Duration(i)*2*time.Minute)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	at := start.Add(10 * time.Minute)
	d, err := l.Allow(ctx, "u1", at)
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if d.CanRequest {
		t.Fatal("expected hourly cap to refuse")
	}
	if d.WaitSeconds != 50*60 {
		t.Fatalf("expected 3000s wait, got %d", d.WaitSeconds)
	}

	d, err = l.Allow(ctx, "u1", start.Add(time.Hour))
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if d.CanRequest {
		t.Fatalf("entry exactly an hour old must still count: %+v", d)
	}

	d, err = l.Allow(ctx, "u1", start.Add(time.Hour+time.Millisecond))
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !d.CanRequest {
		t.Fatalf("window should reopen when the oldest entry leaves: %+v", d)
	}
}

func TestSlidingWindowReset(t *testing.T) {
	l, _ := newLimiter(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if err := l.Record(ctx, "u1", now); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := l.Reset(ctx, "u1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if d, _ := l.Allow(ctx, "u1", now); !d.CanRequest {
		t.Fatalf("expected reset to clear history: %+v", d)
	}
}

func TestSlidingWindowRedisDown(t *testing.T) {
	l, mr := newLimiter(t)
	mr.Close()

	_, err := l.Allow(context.Background(), "u1", time.Now())
	if !errors.Is(err, otp.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
