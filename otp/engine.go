package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config tunes code issuance and verification.
type Config struct {
	Length        int
	Expiry        time.Duration
	MaxAttempts   int
	Cooldown      time.Duration
	MaxPerHour    int
	UsedRetention time.Duration
	// Secret is appended to the code before hashing.
	Secret []byte
	// OperationTimeout bounds each call when the caller's context has no deadline.
	OperationTimeout time.Duration
}

// DefaultConfig returns the standard policy: 6 digits, 10 minute expiry,
// 5 attempts, 60s cooldown, 5 codes per hour, 24h retention of used codes.
func DefaultConfig() Config {
	return Config{
		Length:           6,
		Expiry:           10 * time.Minute,
		MaxAttempts:      5,
		Cooldown:         60 * time.Second,
		MaxPerHour:       5,
		UsedRetention:    24 * time.Hour,
		OperationTimeout: 5 * time.Second,
	}
}

// Validate checks cfg for unusable values.
func (c Config) Validate() error {
	if c.Length < MinLength || c.Length > MaxLength {
		return fmt.Errorf("otp length must be between %d and %d", MinLength, MaxLength)
	}
	if c.Expiry <= 0 {
		return errors.New("otp expiry must be > 0")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("otp max attempts must be > 0")
	}
	if c.Cooldown < 0 || c.MaxPerHour < 0 {
		return errors.New("otp rate limits must be >= 0")
	}
	if c.UsedRetention < 0 {
		return errors.New("otp used retention must be >= 0")
	}
	if len(c.Secret) == 0 {
		return errors.New("otp hashing secret is required")
	}
	return nil
}

// Engine issues and verifies codes. It is safe for concurrent use; correctness
// under concurrency comes from the Store's atomic operations.
type Engine struct {
	cfg     Config
	store   Store
	limiter RateLimiter
	now     func() time.Time
	logger  *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRateLimiter replaces the default history-based limiter.
func WithRateLimiter(l RateLimiter) Option {
	return func(e *Engine) {
		if l != nil {
			e.limiter = l
		}
	}
}

// NewEngine validates cfg and builds an Engine over store. Without
// WithRateLimiter the engine limits from the store's own creation history.
func NewEngine(cfg Config, store Store, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("otp store is required")
	}
	e := &Engine{
		cfg:    cfg,
		store:  store,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.limiter == nil {
		e.limiter = NewHistoryLimiter(store, Policy{Cooldown: cfg.Cooldown, MaxPerHour: cfg.MaxPerHour})
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// CanRequest reports whether userID may be sent a new code. It has no side effects.
func (e *Engine) CanRequest(ctx context.Context, userID string) (Decision, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	return e.limiter.Allow(ctx, userID, e.now())
}

// Create issues a code for (userID, typ), retiring earlier unused codes of the
// same type, and returns the plaintext for delivery.
func (e *Engine) Create(ctx context.Context, userID string, typ Type) (string, error) {
	if userID == "" {
		return "", errors.New("otp user id is required")
	}
	if !typ.Valid() {
		return "", fmt.Errorf("unknown otp type %q", typ)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	code, err := NewCode(e.cfg.Length)
	if err != nil {
		return "", err
	}

	now := e.now()
	rec := &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		CodeHash:  HashCode(code, e.cfg.Secret),
		Type:      typ,
		CreatedAt: now,
		ExpiresAt: now.Add(e.cfg.Expiry),
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		return "", err
	}
	if err := e.limiter.Record(ctx, userID, now); err != nil {
		// The code exists; a lost counter only loosens the limit for this window.
		e.logger.Warn("otp rate limiter record failed", zap.String("user_id", userID), zap.Error(err))
	}

	e.logger.Debug("otp created",
		zap.String("user_id", userID),
		zap.String("type", string(typ)),
		zap.String("otp_id", rec.ID),
	)
	return code, nil
}

// Verify checks code against the newest active record of (userID, typ).
func (e *Engine) Verify(ctx context.Context, userID, code string, typ Type) (Result, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	now := e.now()
	rec, err := e.store.FindActive(ctx, userID, typ, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound(), nil
		}
		return Result{}, err
	}

	if rec.Attempts >= e.cfg.MaxAttempts {
		if _, err := e.store.MarkUsed(ctx, rec.ID, now); err != nil {
			return Result{}, err
		}
		return Result{Error: msgAttemptsExceeded, Reason: ReasonAttemptsExceeded}, nil
	}

	if !matchHash(code, e.cfg.Secret, rec.CodeHash) {
		attempts, err := e.store.IncrementAttempts(ctx, rec.ID, e.cfg.MaxAttempts)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return notFound(), nil
			}
			return Result{}, err
		}
		remaining := e.cfg.MaxAttempts - attempts
		if remaining <= 0 {
			e.logger.Info("otp locked after max attempts", zap.String("user_id", userID), zap.String("otp_id", rec.ID))
			return Result{Error: msgAttemptsExceeded, Reason: ReasonAttemptsExceeded}, nil
		}
		return Result{Error: mismatchMessage(remaining), Reason: ReasonMismatch, RemainingAttempts: remaining}, nil
	}

	ok, err := e.store.MarkUsed(ctx, rec.ID, now)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		// A concurrent submission consumed the record first.
		return notFound(), nil
	}
	return Result{Success: true}, nil
}

// CleanupExpired deletes expired records and used records past retention.
func (e *Engine) CleanupExpired(ctx context.Context) (int64, error) {
	now := e.now()
	return e.store.DeleteExpired(ctx, now, now.Add(-e.cfg.UsedRetention))
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.cfg.OperationTimeout)
}

func notFound() Result {
	return Result{Error: msgNoValidOTP, Reason: ReasonNotFound}
}
