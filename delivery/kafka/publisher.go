// Package kafka publishes issued codes and audit events to Kafka topics. A mail
// worker consumes the code topic and sends the email.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrEthical07/goOTP/delivery"
	"github.com/MrEthical07/goOTP/internal/audit"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Writer is the subset of *kafkago.Writer used here.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewWriter returns a synchronous writer for brokers with leader-only acks.
func NewWriter(brokers []string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Balancer:     &kafkago.LeastBytes{},
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireOne,
	}
}

// codeIssued is the wire form of a delivery.Message.
type codeIssued struct {
	UserID           string    `json:"userId"`
	Email            string    `json:"email"`
	Type             string    `json:"type"`
	Code             string    `json:"code"`
	ExpiresInSeconds int64     `json:"expiresInSeconds"`
	IssuedAt         time.Time `json:"issuedAt"`
}

// Publisher is a delivery.Sender that writes one message per code, keyed by
// user id so a user's codes stay ordered within a partition.
type Publisher struct {
	writer Writer
	topic  string
	logger *zap.Logger
}

var _ delivery.Sender = (*Publisher)(nil)

// NewPublisher returns a Publisher writing to topic.
func NewPublisher(w Writer, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{writer: w, topic: topic, logger: logger.Named("kafka")}
}

func (p *Publisher) Send(ctx context.Context, msg delivery.Message) error {
	body, err := json.Marshal(codeIssued{
		UserID:           msg.UserID,
		Email:            msg.Email,
		Type:             msg.Type,
		Code:             msg.Code,
		ExpiresInSeconds: int64(msg.ExpiresIn / time.Second),
		IssuedAt:         msg.IssuedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", delivery.ErrDeliveryFailed, err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Topic:   p.topic,
		Key:     []byte(msg.UserID),
		Value:   body,
		Time:    msg.IssuedAt,
		Headers: []kafkago.Header{{Key: "type", Value: []byte(msg.Type)}},
	})
	if err != nil {
		p.logger.Error("publish code failed", zap.String("user_id", msg.UserID), zap.String("topic", p.topic), zap.Error(err))
		return fmt.Errorf("%w: %v", delivery.ErrDeliveryFailed, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// AuditSink streams audit events to a topic. Failures are logged and dropped.
type AuditSink struct {
	writer  Writer
	topic   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewAuditSink returns an AuditSink writing to topic.
func NewAuditSink(w Writer, topic string, logger *zap.Logger) *AuditSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditSink{writer: w, topic: topic, timeout: 5 * time.Second, logger: logger.Named("kafka")}
}

func (s *AuditSink) Emit(ctx context.Context, event audit.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("encode audit event failed", zap.String("event_type", event.EventType), zap.Error(err))
		return
	}

	// The dispatcher normally supplies a deadline; fall back to our own.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
	}

	err = s.writer.WriteMessages(ctx, kafkago.Message{
		Topic: s.topic,
		Key:   []byte(event.UserID),
		Value: body,
		Time:  event.Timestamp,
	})
	if err != nil {
		s.logger.Warn("publish audit event failed", zap.String("event_type", event.EventType), zap.Error(err))
	}
}

// Close closes the writer.
func (s *AuditSink) Close() error {
	return s.writer.Close()
}
