package goOTP

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goOTP/otp"
	"github.com/MrEthical07/goOTP/session"
)

func TestJanitorSweep(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	for _, user := range []string{"u1", "u2"} {
		if _, err := te.CreateOTP(ctx, user, otp.TypeLogin); err != nil {
			t.Fatalf("create otp: %v", err)
		}
	}
	c, err := te.CreateSession(ctx, session.Subject{UserID: "u1"}, session.Device{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	_ = te.InvalidateSession(ctx, c.Session.ID)
	te.clock.Advance(time.Hour)

	j := NewJanitor(te.Engine, time.Minute, nil)
	codes, sessions := j.Sweep(ctx)
	if codes != 2 || sessions != 1 {
		t.Fatalf("expected 2 codes and 1 session, got %d and %d", codes, sessions)
	}
	codes, sessions = j.Sweep(ctx)
	if codes != 0 || sessions != 0 {
		t.Fatalf("second sweep should be empty, got %d and %d", codes, sessions)
	}
}

func TestJanitorStartStop(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	j := NewJanitor(te.Engine, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	j.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	j.Stop()
	j.Stop()
}

func TestJanitorStartIsIdempotent(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	j := NewJanitor(te.Engine, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	j.Start(ctx)
	j.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	j.Stop()
}

func TestJanitorStopWithoutStart(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	j := NewJanitor(te.Engine, time.Minute, nil)

	stopped := make(chan struct{})
	go func() {
		j.Stop()
		j.Start(context.Background())
		j.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a janitor that never started")
	}
}
