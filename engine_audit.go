package goOTP

import (
	"context"
	"errors"

	"github.com/MrEthical07/goOTP/delivery"
	"github.com/MrEthical07/goOTP/otp"
	"github.com/MrEthical07/goOTP/session"
)

// AuditErrorCode is the stable, non-sensitive error label carried by audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized     AuditErrorCode = "unauthorized"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrInvalidCode      AuditErrorCode = "invalid_code"
	auditErrAttemptsExceeded AuditErrorCode = "attempts_exceeded"
	auditErrCodeNotFound     AuditErrorCode = "code_not_found"
	auditErrRefreshReuse     AuditErrorCode = "refresh_reuse"
	auditErrSessionNotFound  AuditErrorCode = "session_not_found"
	auditErrUserNotFound     AuditErrorCode = "user_not_found"
	auditErrAccountDisabled  AuditErrorCode = "account_disabled"
	auditErrInvalidEmail     AuditErrorCode = "invalid_email"
	auditErrDeliveryFailed   AuditErrorCode = "delivery_failed"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

// errors used only to label audit events for policy outcomes that are not
// returned to callers as errors.
var (
	errAuditRateLimited      = errors.New("rate limited")
	errAuditInvalidCode      = errors.New("invalid code")
	errAuditAttemptsExceeded = errors.New("attempts exceeded")
	errAuditCodeNotFound     = errors.New("code not found")
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        ClientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func verifyAuditError(res otp.Result) error {
	switch res.Reason {
	case otp.ReasonAttemptsExceeded:
		return errAuditAttemptsExceeded
	case otp.ReasonNotFound:
		return errAuditCodeNotFound
	default:
		return errAuditInvalidCode
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, errAuditRateLimited):
		return auditErrRateLimited
	case errors.Is(err, errAuditInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, errAuditAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, errAuditCodeNotFound):
		return auditErrCodeNotFound
	case errors.Is(err, session.ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, session.ErrNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrUserInactive):
		return auditErrAccountDisabled
	case errors.Is(err, ErrInvalidEmail):
		return auditErrInvalidEmail
	case errors.Is(err, delivery.ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, otp.ErrStoreUnavailable),
		errors.Is(err, session.ErrStoreUnavailable),
		errors.Is(err, ErrDirectoryUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
