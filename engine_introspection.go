package goOTP

import (
	"context"
	"time"

	"github.com/MrEthical07/goOTP/session"
)

// SessionInfo is the safe introspection view for a session. It excludes
// token material and refresh hashes.
type SessionInfo struct {
	SessionID string    `json:"sessionId"`
	UserAgent string    `json:"userAgent,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	// Current marks the session the request was made with.
	Current bool `json:"current"`
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	StoreAvailable bool          `json:"storeAvailable"`
	StoreLatency   time.Duration `json:"storeLatency"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// ListActiveSessions returns the live sessions of the user named by
// accessToken, newest first.
func (e *Engine) ListActiveSessions(ctx context.Context, accessToken string) ([]SessionInfo, error) {
	claims, err := e.AuthenticateSession(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	sessions, err := e.sessions.List(ctx, claims.UID)
	if err != nil {
		return nil, err
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		info := toSessionInfo(sess)
		info.Current = sess.ID == claims.SID
		out = append(out, info)
	}
	return out, nil
}

// GetActiveSessionCount returns how many live sessions userID has.
func (e *Engine) GetActiveSessionCount(ctx context.Context, userID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if userID == "" {
		return 0, ErrUserNotFound
	}
	sessions, err := e.sessions.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}

// Health pings the session store when it supports it. Stores without a
// Ping method are reported available.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessionStore == nil {
		return HealthStatus{}
	}
	p, ok := e.sessionStore.(pinger)
	if !ok {
		return HealthStatus{StoreAvailable: true}
	}

	start := time.Now()
	err := p.Ping(ctx)
	return HealthStatus{
		StoreAvailable: err == nil,
		StoreLatency:   time.Since(start),
	}
}

func toSessionInfo(sess *session.Session) SessionInfo {
	return SessionInfo{
		SessionID: sess.ID,
		UserAgent: sess.UserAgent,
		IPAddress: sess.IPAddress,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		ExpiresAt: sess.ExpiresAt,
	}
}
