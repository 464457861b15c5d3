package otp

import (
	"context"
	"math"
	"time"
)

// RateLimiter decides whether a user may be sent another code.
//
// Allow must not mutate state. Record is called once per issued code.
type RateLimiter interface {
	Allow(ctx context.Context, userID string, now time.Time) (Decision, error)
	Record(ctx context.Context, userID string, now time.Time) error
}

// Policy holds the cooldown and hourly cap shared by limiter implementations.
type Policy struct {
	Cooldown   time.Duration
	MaxPerHour int
}

// Window is the trailing window the hourly cap applies to.
const Window = time.Hour

// Decide applies p to creation times within the trailing window, oldest first.
// Both bounds are inclusive: a code created exactly Cooldown ago still blocks,
// and one created exactly Window ago still counts toward the cap.
func (p Policy) Decide(created []time.Time, now time.Time) Decision {
	if n := len(created); n > 0 && p.Cooldown > 0 {
		latest := created[n-1]
		elapsed := now.Sub(latest)
		if elapsed <= p.Cooldown {
			wait := int(p.Cooldown/time.Second) - int(elapsed/time.Second)
			if wait < 1 {
				wait = 1
			}
			return Decision{CanRequest: false, WaitSeconds: wait, Reason: cooldownMessage(wait)}
		}
	}

	if p.MaxPerHour > 0 && len(created) >= p.MaxPerHour {
		// The window reopens when the oldest counted creation ages out.
		oldest := created[len(created)-p.MaxPerHour]
		wait := int(math.Ceil(oldest.Add(Window).Sub(now).Seconds()))
		if wait < 1 {
			wait = 1
		}
		return Decision{CanRequest: false, WaitSeconds: wait, Reason: msgHourlyCap}
	}

	return Decision{CanRequest: true}
}

// HistoryLimiter derives decisions from the code store's own creation history.
// Record is a no-op because Insert already leaves the trace.
type HistoryLimiter struct {
	history History
	policy  Policy
}

// NewHistoryLimiter returns a RateLimiter backed by h.
func NewHistoryLimiter(h History, p Policy) *HistoryLimiter {
	return &HistoryLimiter{history: h, policy: p}
}

func (l *HistoryLimiter) Allow(ctx context.Context, userID string, now time.Time) (Decision, error) {
	created, err := l.history.CreatedSince(ctx, userID, now.Add(-Window))
	if err != nil {
		return Decision{}, err
	}
	return l.policy.Decide(created, now), nil
}

func (l *HistoryLimiter) Record(context.Context, string, time.Time) error {
	return nil
}
