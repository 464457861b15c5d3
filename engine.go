package goOTP

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goOTP/delivery"
	"github.com/MrEthical07/goOTP/internal/audit"
	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/otp"
	"github.com/MrEthical07/goOTP/session"
	"github.com/MrEthical07/goOTP/token"
	"go.uber.org/zap"
)

// Engine composes the OTP engine, token service and session manager, and adds
// audit events and metrics on top of them. Build one with New().
type Engine struct {
	config   Config
	otp      *otp.Engine
	tokens   *token.Service
	sessions *session.Manager
	// sessionStore is kept for health checks only.
	sessionStore session.Store
	directory    Directory
	sender       delivery.Sender
	audit        *audit.Dispatcher
	metrics      *Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// Close drains pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.otp == nil || e.sessions == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	return nil
}

/*
====================================
OTP
====================================
*/

// CanRequestOTP reports whether userID may be sent a new code. It has no side
// effects; a refusal carries the wait in seconds and a user-facing reason.
func (e *Engine) CanRequestOTP(ctx context.Context, userID string) (otp.Decision, error) {
	if err := e.ready(); err != nil {
		return otp.Decision{}, err
	}
	return e.otp.CanRequest(ctx, userID)
}

// CreateOTP issues a code for (userID, typ), retiring any unused code of the
// same type, and returns the plaintext. It does not check the rate limit.
func (e *Engine) CreateOTP(ctx context.Context, userID string, typ otp.Type) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	code, err := e.otp.Create(ctx, userID, typ)
	if err != nil {
		return "", err
	}
	e.metricInc(MetricOTPRequested)
	return code, nil
}

// VerifyOTP checks code against the newest active code of (userID, typ).
// Failed verifications are results, not errors.
func (e *Engine) VerifyOTP(ctx context.Context, userID, code string, typ otp.Type) (otp.Result, error) {
	if err := e.ready(); err != nil {
		return otp.Result{}, err
	}
	res, err := e.otp.Verify(ctx, userID, code, typ)
	if err != nil {
		return otp.Result{}, err
	}
	switch {
	case res.Success:
		e.metricInc(MetricOTPVerifySuccess)
	case res.Reason == otp.ReasonAttemptsExceeded:
		e.metricInc(MetricOTPVerifyFailure)
		e.metricInc(MetricOTPAttemptsExceeded)
	default:
		e.metricInc(MetricOTPVerifyFailure)
	}
	return res, nil
}

// CleanupExpiredOTPs deletes expired codes and used codes past retention.
func (e *Engine) CleanupExpiredOTPs(ctx context.Context) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.otp.CleanupExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.metrics.Add(MetricCleanupOTPDeleted, uint64(n))
	}
	return n, nil
}

/*
====================================
SESSIONS
====================================
*/

// CreateSession opens a session and returns it with its first token pair.
// Empty device fields are filled from WithUserAgent and WithClientIP.
func (e *Engine) CreateSession(ctx context.Context, sub session.Subject, dev session.Device) (*session.Created, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if dev.UserAgent == "" {
		dev.UserAgent = userAgentFromContext(ctx)
	}
	if dev.IPAddress == "" {
		dev.IPAddress = ClientIPFromContext(ctx)
	}
	created, err := e.sessions.Create(ctx, sub, dev)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionCreated)
	return created, nil
}

// ValidateSession returns the status of a live session, or nil when it is
// missing, revoked or expired.
func (e *Engine) ValidateSession(ctx context.Context, sessionID string) (*session.Status, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}
	return e.sessions.Validate(ctx, sessionID)
}

// RefreshTokens rotates the session bound to refreshToken. It returns nil for
// any refresh that cannot proceed, including the replay of a rotated token,
// which is audited and may revoke the session.
func (e *Engine) RefreshTokens(ctx context.Context, refreshToken string) (*token.Pair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pair, err := e.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrRefreshReuse) {
			e.metricInc(MetricRefreshFailure)
			e.metricInc(MetricRefreshReuseDetected)
			e.emitAudit(ctx, AuditRefreshReuse, false, "", "", err, func() map[string]string {
				return map[string]string{
					"revoked": boolString(e.config.Session.RevokeOnReuse),
				}
			})
			return nil, nil
		}
		return nil, err
	}
	if pair == nil {
		e.metricInc(MetricRefreshFailure)
		return nil, nil
	}

	e.metricInc(MetricRefreshSuccess)
	if claims := e.tokens.VerifyAccessToken(pair.AccessToken); claims != nil {
		e.emitAudit(ctx, AuditRefresh, true, claims.UID, claims.SID, nil, nil)
	}
	return pair, nil
}

// InvalidateSession revokes one session. Unknown ids are not an error.
func (e *Engine) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.sessions.Invalidate(ctx, sessionID); err != nil {
		return err
	}
	e.metricInc(MetricSessionInvalidated)
	return nil
}

// InvalidateAllSessions revokes every session of userID and returns how many
// were active.
func (e *Engine) InvalidateAllSessions(ctx context.Context, userID string) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.sessions.InvalidateAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.metrics.Add(MetricSessionInvalidated, uint64(n))
	}
	return n, nil
}

// CleanupExpiredSessions purges revoked and expired sessions.
func (e *Engine) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.sessions.CleanupExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.metrics.Add(MetricCleanupSessionsDeleted, uint64(n))
	}
	return n, nil
}

/*
====================================
ACCESS TOKENS
====================================
*/

// VerifyAccessToken checks signature and expiry only. It returns nil for any
// invalid token and never touches the session store.
func (e *Engine) VerifyAccessToken(accessToken string) *jwt.AccessClaims {
	if e == nil || e.tokens == nil {
		return nil
	}
	return e.tokens.VerifyAccessToken(accessToken)
}

// AuthenticateSession verifies accessToken and additionally requires its
// session to be live. Use it where revocation must take effect before the
// access token expires.
func (e *Engine) AuthenticateSession(ctx context.Context, accessToken string) (*jwt.AccessClaims, error) {
	claims := e.VerifyAccessToken(accessToken)
	if claims == nil {
		return nil, ErrUnauthorized
	}
	status, err := e.ValidateSession(ctx, claims.SID)
	if err != nil {
		return nil, err
	}
	if status == nil || status.UserID != claims.UID {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
