package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goOTP/delivery"
	"github.com/MrEthical07/goOTP/internal/audit"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisherWritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w, "otp.codes", nil)
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := p.Send(context.Background(), delivery.Message{
		UserID:    "user-1",
		Email:     "a@example.com",
		Type:      "LOGIN",
		Code:      "123456",
		ExpiresIn: 10 * time.Minute,
		IssuedAt:  issued,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}

	m := w.msgs[0]
	if m.Topic != "otp.codes" || string(m.Key) != "user-1" {
		t.Fatalf("unexpected routing topic=%q key=%q", m.Topic, m.Key)
	}
	if len(m.Headers) != 1 || string(m.Headers[0].Value) != "LOGIN" {
		t.Fatalf("unexpected headers %+v", m.Headers)
	}

	var body codeIssued
	if err := json.Unmarshal(m.Value, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != "123456" || body.ExpiresInSeconds != 600 || !body.IssuedAt.Equal(issued) {
		t.Fatalf("unexpected body %+v", body)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("Close did not close writer")
	}
}

func TestPublisherWrapsWriteError(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisher(w, "otp.codes", zap.New(core))

	err := p.Send(context.Background(), delivery.Message{UserID: "u", Code: "999999"})
	if !errors.Is(err, delivery.ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected one error log, got %d", logs.Len())
	}
	for _, f := range logs.All()[0].Context {
		if f.String == "999999" {
			t.Fatalf("code leaked into logs")
		}
	}
}

func TestAuditSinkPublishesAndSwallowsErrors(t *testing.T) {
	w := &fakeWriter{}
	sink := NewAuditSink(w, "otp.audit", nil)

	ev := audit.Event{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EventType: "LOGIN_SUCCESS",
		UserID:    "user-1",
		Success:   true,
	}
	sink.Emit(context.Background(), ev)
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 audit message, got %d", len(w.msgs))
	}
	var got audit.Event
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventType != "LOGIN_SUCCESS" || got.UserID != "user-1" {
		t.Fatalf("unexpected event %+v", got)
	}

	core, logs := observer.New(zap.WarnLevel)
	failing := NewAuditSink(&fakeWriter{err: errors.New("boom")}, "otp.audit", zap.New(core))
	failing.Emit(context.Background(), ev)
	if logs.Len() != 1 {
		t.Fatalf("expected warn log on failure, got %d", logs.Len())
	}
}

func TestNewWriterSettings(t *testing.T) {
	w := NewWriter([]string{"k1:9092", "k2:9092"})
	if w.RequiredAcks != kafkago.RequireOne {
		t.Fatalf("unexpected acks %v", w.RequiredAcks)
	}
	if _, ok := w.Balancer.(*kafkago.LeastBytes); !ok {
		t.Fatalf("unexpected balancer %T", w.Balancer)
	}
}
