package goOTP

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goOTP/delivery"
	"github.com/MrEthical07/goOTP/otp"
	"github.com/MrEthical07/goOTP/session"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false

	sink := &countingSink{}
	te := newTestEngine(t, cfg, sink)

	_, _ = te.RequestLoginCode(context.Background(), "alice@example.com")
	te.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditEventCarriesRequestFields(t *testing.T) {
	sink := NewChannelSink(8)
	te := newTestEngine(t, testConfig(), sink)

	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.33"), "curl/8")
	req, err := te.RequestLoginCode(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("request code: %v", err)
	}

	select {
	case ev := <-sink.Events():
		if ev.EventType != AuditOTPRequested {
			t.Fatalf("expected %s, got %s", AuditOTPRequested, ev.EventType)
		}
		if ev.IP != "198.51.100.33" || ev.UserAgent != "curl/8" {
			t.Fatalf("unexpected request fields ip=%q ua=%q", ev.IP, ev.UserAgent)
		}
		if ev.UserID != req.UserID || !ev.Success {
			t.Fatalf("unexpected event %+v", ev)
		}
		if !ev.Timestamp.Equal(te.clock.Now()) {
			t.Fatalf("expected timestamp from engine clock, got %v", ev.Timestamp)
		}
		msg, _ := te.sender.Last("alice@example.com")
		for k, v := range ev.Metadata {
			if v == msg.Code {
				t.Fatalf("code leaked in metadata key %s", k)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected audit event to be received")
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrUnauthorized, auditErrUnauthorized},
		{errAuditRateLimited, auditErrRateLimited},
		{verifyAuditError(otp.Result{Reason: otp.ReasonMismatch}), auditErrInvalidCode},
		{verifyAuditError(otp.Result{Reason: otp.ReasonAttemptsExceeded}), auditErrAttemptsExceeded},
		{verifyAuditError(otp.Result{Reason: otp.ReasonNotFound}), auditErrCodeNotFound},
		{session.ErrRefreshReuse, auditErrRefreshReuse},
		{ErrUserInactive, auditErrAccountDisabled},
		{ErrInvalidEmail, auditErrInvalidEmail},
		{delivery.ErrDeliveryFailed, auditErrDeliveryFailed},
		{errors.Join(errors.New("dial"), otp.ErrStoreUnavailable), auditErrUnavailable},
		{ErrDirectoryUnavailable, auditErrUnavailable},
		{errors.New("boom"), auditErrInternal},
	}
	for _, tc := range cases {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestAuditDroppedCountsFullBuffer(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.BufferSize = 1
	cfg.Audit.DropIfFull = true

	gate := make(chan struct{})
	var released atomic.Bool
	sink := sinkFunc(func(context.Context, AuditEvent) {
		if !released.Load() {
			<-gate
		}
	})
	te := newTestEngine(t, cfg, sink)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := te.CreateSession(ctx, session.Subject{UserID: "u1"}, session.Device{}); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}
	// Session creation is not audited; logout is.
	for i := 0; i < 5; i++ {
		c, _ := te.CreateSession(ctx, session.Subject{UserID: "u1"}, session.Device{})
		_ = te.Logout(ctx, c.Tokens.AccessToken)
	}

	if te.AuditDropped() == 0 {
		t.Fatal("expected dropped audit events")
	}
	released.Store(true)
	close(gate)
}

type sinkFunc func(context.Context, AuditEvent)

func (f sinkFunc) Emit(ctx context.Context, ev AuditEvent) { f(ctx, ev) }
