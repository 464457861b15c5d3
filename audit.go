package goOTP

import (
	"io"

	"github.com/MrEthical07/goOTP/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is a single audit record emitted by the Engine.
type AuditEvent = audit.Event

// AuditSink receives audit events. Emit is called from the dispatcher
// goroutine, never from the request path.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	LoggerSink     = audit.LoggerSink
	MultiSink      = audit.MultiSink
)

// Audit event types.
const (
	AuditOTPRequested   = "OTP_REQUESTED"
	AuditOTPRateLimited = "OTP_RATE_LIMITED"
	AuditOTPFailed      = "OTP_FAILED"
	AuditLoginSuccess   = "LOGIN_SUCCESS"
	AuditRefresh        = "REFRESH"
	AuditRefreshReuse   = "REFRESH_REUSE"
	AuditLogout         = "LOGOUT"
	AuditLogoutAll      = "LOGOUT_ALL"
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewLoggerSink writes audit events as structured zap entries.
func NewLoggerSink(logger *zap.Logger) *LoggerSink {
	return audit.NewLoggerSink(logger)
}
