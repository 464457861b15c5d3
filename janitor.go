package goOTP

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically purges expired codes and sessions. The Engine never
// schedules cleanup itself; deployments either run a Janitor or invoke
// cmd/goOTP-cleanup from cron.
type Janitor struct {
	engine   *Engine
	interval time.Duration
	logger   *zap.Logger

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewJanitor returns a Janitor that sweeps every interval.
func NewJanitor(engine *Engine, interval time.Duration, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		engine:   engine,
		interval: interval,
		logger:   logger.Named("janitor"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called. Only the
// first call starts a loop, and a Janitor cannot be restarted after Stop.
func (j *Janitor) Start(ctx context.Context) {
	j.startOnce.Do(func() {
		go j.run(ctx)
	})
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Stop ends the loop and waits for an in-flight sweep. It is safe to call more
// than once and before Start.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
	// Without a prior Start this claims the start slot, so done is closed here
	// and a later Start does nothing.
	j.startOnce.Do(func() { close(j.done) })
	<-j.done
}

// Sweep runs one cleanup pass and returns the number of purged codes and sessions.
func (j *Janitor) Sweep(ctx context.Context) (codes, sessions int64) {
	codes, err := j.engine.CleanupExpiredOTPs(ctx)
	if err != nil {
		j.logger.Warn("otp cleanup failed", zap.Error(err))
	}
	sessions, err = j.engine.CleanupExpiredSessions(ctx)
	if err != nil {
		j.logger.Warn("session cleanup failed", zap.Error(err))
	}
	if codes > 0 || sessions > 0 {
		j.logger.Info("cleanup sweep", zap.Int64("otp_deleted", codes), zap.Int64("sessions_deleted", sessions))
	}
	return codes, sessions
}
