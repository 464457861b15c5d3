package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrDeliveryFailed wraps transport failures from a Sender.
var ErrDeliveryFailed = errors.New("code delivery failed")

// TypeWelcome marks the message sent after a user's first login. It carries
// no code.
const TypeWelcome = "WELCOME"

// Message is a code addressed to a user. Code is plaintext and must only
// leave the process through the delivery channel itself.
type Message struct {
	UserID    string        `json:"user_id"`
	Email     string        `json:"email"`
	Type      string        `json:"type"`
	Code      string        `json:"code"`
	ExpiresIn time.Duration `json:"expires_in"`
	IssuedAt  time.Time     `json:"issued_at"`
}

// Sender dispatches a code message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// LogSender writes messages to a zap logger. With RevealCode unset the code is
// masked, which keeps it usable outside development.
type LogSender struct {
	logger     *zap.Logger
	revealCode bool
}

// NewLogSender returns a LogSender. revealCode should only be true in development.
func NewLogSender(logger *zap.Logger, revealCode bool) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger.Named("delivery"), revealCode: revealCode}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if msg.Code == "" {
		s.logger.Info("message sent",
			zap.String("user_id", msg.UserID),
			zap.String("email", msg.Email),
			zap.String("type", msg.Type),
		)
		return nil
	}
	code := "******"
	if s.revealCode {
		code = msg.Code
	}
	s.logger.Info("one-time code issued",
		zap.String("user_id", msg.UserID),
		zap.String("email", msg.Email),
		zap.String("type", msg.Type),
		zap.String("code", code),
		zap.Duration("expires_in", msg.ExpiresIn),
	)
	return nil
}

// Recorder keeps every message in memory. Tests use it to read issued codes.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

// Fail makes subsequent sends return err after recording the message.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

// Messages returns a copy of all recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// Last returns the most recent message sent to email.
func (r *Recorder) Last(email string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Email == email {
			return r.msgs[i], true
		}
	}
	return Message{}, false
}
