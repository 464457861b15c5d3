package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/MrEthical07/goOTP/refresh"
	"github.com/MrEthical07/goOTP/token"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config tunes session lifetime and replay handling.
type Config struct {
	// TTL is the absolute session lifetime. Rotation does not extend it.
	TTL time.Duration
	// RevokeOnReuse revokes a session when one of its rotated refresh tokens
	// is presented again.
	RevokeOnReuse bool
	// OperationTimeout bounds each call when the caller's context has no deadline.
	OperationTimeout time.Duration
}

// DefaultConfig returns a 7 day session lifetime with reuse revocation on.
func DefaultConfig() Config {
	return Config{
		TTL:              7 * 24 * time.Hour,
		RevokeOnReuse:    true,
		OperationTimeout: 5 * time.Second,
	}
}

// Validate checks cfg for unusable values.
func (c Config) Validate() error {
	if c.TTL <= 0 {
		return errors.New("session TTL must be > 0")
	}
	if c.OperationTimeout < 0 {
		return errors.New("session operation timeout must be >= 0")
	}
	return nil
}

// Manager opens, validates, rotates and revokes sessions.
type Manager struct {
	cfg      Config
	store    Store
	tokens   *token.Service
	resolver SubjectResolver
	now      func() time.Time
	logger   *zap.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSubjectResolver reloads email and role from r on every refresh instead
// of reusing the snapshot stored with the session.
func WithSubjectResolver(r SubjectResolver) Option {
	return func(m *Manager) {
		m.resolver = r
	}
}

// NewManager validates cfg and builds a Manager.
func NewManager(cfg Config, store Store, tokens *token.Service, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if tokens == nil {
		return nil, errors.New("token service is required")
	}
	m := &Manager{
		cfg:    cfg,
		store:  store,
		tokens: tokens,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Create opens a session for sub and mints its first token pair. The session
// id is generated up front so the pair can embed it before the single write.
func (m *Manager) Create(ctx context.Context, sub Subject, dev Device) (*Created, error) {
	if sub.UserID == "" {
		return nil, errors.New("session user id is required")
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	id := uuid.NewString()
	pair, hash, err := m.tokens.GenerateTokens(token.Subject{
		UserID:    sub.UserID,
		Email:     sub.Email,
		Role:      sub.Role,
		SessionID: id,
	})
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := &Session{
		ID:               id,
		UserID:           sub.UserID,
		Email:            sub.Email,
		Role:             sub.Role,
		AccessToken:      pair.AccessToken,
		RefreshTokenHash: hash,
		UserAgent:        dev.UserAgent,
		IPAddress:        dev.IPAddress,
		IsValid:          true,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        now.Add(m.cfg.TTL),
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}

	m.logger.Debug("session created", zap.String("user_id", sub.UserID), zap.String("session_id", id))
	return &Created{Session: sess, Tokens: pair}, nil
}

// Validate returns the status of an active session and nil when the session is
// missing, revoked or expired. The three cases are not distinguished.
func (m *Manager) Validate(ctx context.Context, sessionID string) (*Status, error) {
	if sessionID == "" {
		return nil, nil
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !sess.Active(m.now()) {
		return nil, nil
	}
	return &Status{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		IsValid:   sess.IsValid,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// Refresh rotates the session bound to refreshToken and returns the new pair.
// It returns nil for unknown, revoked or expired sessions and for a refresh
// that lost a race with a concurrent one. Replay of a rotated token returns a
// nil pair with ErrRefreshReuse.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	parsed, err := refresh.Parse(refreshToken)
	if err != nil {
		return nil, nil
	}
	hash := refresh.Hash(parsed)

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	now := m.now()
	sess, err := m.store.FindByRefreshHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, m.checkReuse(ctx, hash, now)
		}
		return nil, err
	}
	if !sess.Active(now) {
		return nil, nil
	}

	sub := Subject{UserID: sess.UserID, Email: sess.Email, Role: sess.Role}
	if m.resolver != nil {
		sub, err = m.resolver.ResolveSubject(ctx, sess.UserID)
		if err != nil {
			if errors.Is(err, ErrSubjectRejected) {
				m.logger.Info("refresh refused for rejected subject", zap.String("session_id", sess.ID))
				return nil, nil
			}
			return nil, err
		}
		sub.UserID = sess.UserID
	}

	pair, nextHash, err := m.tokens.GenerateTokens(token.Subject{
		UserID:    sub.UserID,
		Email:     sub.Email,
		Role:      sub.Role,
		SessionID: sess.ID,
	})
	if err != nil {
		return nil, err
	}

	swapped, err := m.store.Rotate(ctx, sess.ID, hash, Rotation{
		AccessToken: pair.AccessToken,
		RefreshHash: nextHash,
		Email:       sub.Email,
		Role:        sub.Role,
		At:          now,
	})
	if err != nil {
		return nil, err
	}
	if !swapped {
		m.logger.Debug("refresh lost rotation race", zap.String("session_id", sess.ID))
		return nil, nil
	}
	return &pair, nil
}

func (m *Manager) checkReuse(ctx context.Context, hash string, now time.Time) error {
	sess, err := m.store.FindByPreviousHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	m.logger.Warn("rotated refresh token presented again",
		zap.String("user_id", sess.UserID),
		zap.String("session_id", sess.ID),
		zap.Bool("revoke", m.cfg.RevokeOnReuse),
	)
	if m.cfg.RevokeOnReuse && sess.Active(now) {
		if _, err := m.store.Invalidate(ctx, sess.ID, now); err != nil {
			return err
		}
	}
	return ErrRefreshReuse
}

// Invalidate revokes one session. Unknown ids are not an error.
func (m *Manager) Invalidate(ctx context.Context, sessionID string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, err := m.store.Invalidate(ctx, sessionID, m.now())
	return err
}

// InvalidateAll revokes every session of userID and returns how many were active.
func (m *Manager) InvalidateAll(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return m.store.InvalidateAllForUser(ctx, userID, m.now())
}

// CleanupExpired purges revoked and expired sessions.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpiredOrInvalid(ctx, m.now())
}

// List returns the active sessions of userID, newest first.
func (m *Manager) List(ctx context.Context, userID string) ([]*Session, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	all, err := m.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	out := make([]*Session, 0, len(all))
	for _, sess := range all {
		if sess.Active(now) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Lookup returns the stored session regardless of state.
func (m *Manager) Lookup(ctx context.Context, sessionID string) (*Session, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return m.store.Get(ctx, sessionID)
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.cfg.OperationTimeout)
}
