package goOTP

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goOTP/delivery"
	"github.com/MrEthical07/goOTP/otp"
	"github.com/MrEthical07/goOTP/session"
	"github.com/MrEthical07/goOTP/token"
	"go.uber.org/zap"
)

// CodeRequest is the outcome of RequestLoginCode. When Decision.CanRequest is
// false no code was issued.
type CodeRequest struct {
	UserID    string
	Decision  otp.Decision
	EmailSent bool
	OTPSentAt time.Time
}

// LoginResult is the outcome of Login. Session and Tokens are set only when
// Verification.Success is true.
type LoginResult struct {
	User         *User
	Verification otp.Result
	Session      *session.Session
	Tokens       *token.Pair
	// FirstLogin is true when this login verified the email for the first time.
	FirstLogin bool
}

// RequestLoginCode resolves or provisions the user for email, applies the
// request limits and issues a LOGIN code through the configured Sender.
// A failed delivery is logged and audited but does not fail the request.
func (e *Engine) RequestLoginCode(ctx context.Context, email string) (*CodeRequest, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.directory == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.directory.FindOrCreateByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrUserInactive
	}

	decision, err := e.otp.CanRequest(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if !decision.CanRequest {
		e.metricInc(MetricOTPRateLimited)
		e.emitAudit(ctx, AuditOTPRateLimited, false, user.ID, "", errAuditRateLimited, func() map[string]string {
			return map[string]string{
				"waitSeconds": strconv.Itoa(decision.WaitSeconds),
			}
		})
		return &CodeRequest{UserID: user.ID, Decision: decision}, nil
	}

	code, err := e.CreateOTP(ctx, user.ID, otp.TypeLogin)
	if err != nil {
		return nil, err
	}

	sentAt := e.now()
	sent := e.deliver(ctx, delivery.Message{
		UserID:    user.ID,
		Email:     user.Email,
		Type:      string(otp.TypeLogin),
		Code:      code,
		ExpiresIn: e.otp.Config().Expiry,
		IssuedAt:  sentAt,
	})

	e.emitAudit(ctx, AuditOTPRequested, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{
			"emailSent": boolString(sent),
			"otpSentAt": strconv.FormatInt(sentAt.Unix(), 10),
		}
	})

	return &CodeRequest{
		UserID:    user.ID,
		Decision:  decision,
		EmailSent: sent,
		OTPSentAt: sentAt,
	}, nil
}

func (e *Engine) deliver(ctx context.Context, msg delivery.Message) bool {
	if e.sender == nil {
		e.logger.Warn("no code sender configured", zap.String("user_id", msg.UserID))
		e.metricInc(MetricOTPDeliveryFailure)
		return false
	}
	if err := e.sender.Send(ctx, msg); err != nil {
		e.logger.Error("code delivery failed", zap.String("user_id", msg.UserID), zap.Error(err))
		e.metricInc(MetricOTPDeliveryFailure)
		return false
	}
	return true
}

// welcome greets a user after their first verified login. Failures are logged
// and never fail the login.
func (e *Engine) welcome(ctx context.Context, user *User, at time.Time) {
	if !e.config.OTP.SendWelcome || e.sender == nil {
		return
	}
	err := e.sender.Send(ctx, delivery.Message{
		UserID:   user.ID,
		Email:    user.Email,
		Type:     delivery.TypeWelcome,
		IssuedAt: at,
	})
	if err != nil {
		e.logger.Warn("welcome message failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

// Login verifies a LOGIN code for email and, on success, opens a session and
// records the login. A wrong code yields a result with Verification.Error set
// and a nil error.
func (e *Engine) Login(ctx context.Context, email, code string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.directory == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.directory.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		e.metricInc(MetricLoginRejected)
		return nil, ErrUserInactive
	}

	res, err := e.VerifyOTP(ctx, user.ID, code, otp.TypeLogin)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		e.metricInc(MetricLoginRejected)
		e.emitAudit(ctx, AuditOTPFailed, false, user.ID, "", verifyAuditError(res), func() map[string]string {
			return map[string]string{
				"reason": string(res.Reason),
			}
		})
		return &LoginResult{User: user, Verification: res}, nil
	}

	created, err := e.CreateSession(ctx, session.Subject{
		UserID: user.ID,
		Email:  user.Email,
		Role:   string(user.Role),
	}, session.Device{})
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	firstLogin := !user.EmailVerified
	at := e.now()
	if err := e.directory.RecordLogin(ctx, user.ID, at); err != nil {
		e.logger.Warn("record login failed", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &at
		user.EmailVerified = true
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLoginSuccess, true, user.ID, created.Session.ID, nil, func() map[string]string {
		return map[string]string{
			"sessionId": created.Session.ID,
		}
	})
	if firstLogin {
		e.welcome(ctx, user, at)
	}

	tokens := created.Tokens
	return &LoginResult{
		User:         user,
		Verification: res,
		Session:      created.Session,
		Tokens:       &tokens,
		FirstLogin:   firstLogin,
	}, nil
}

// Logout revokes the session named by accessToken.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	claims := e.VerifyAccessToken(accessToken)
	if claims == nil {
		return ErrUnauthorized
	}
	if err := e.InvalidateSession(ctx, claims.SID); err != nil {
		return err
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, true, claims.UID, claims.SID, nil, nil)
	return nil
}

// LogoutAll revokes every session of the user named by accessToken and
// returns how many were active.
func (e *Engine) LogoutAll(ctx context.Context, accessToken string) (int64, error) {
	claims := e.VerifyAccessToken(accessToken)
	if claims == nil {
		return 0, ErrUnauthorized
	}
	n, err := e.InvalidateAllSessions(ctx, claims.UID)
	if err != nil {
		return 0, err
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, AuditLogoutAll, true, claims.UID, claims.SID, nil, func() map[string]string {
		return map[string]string{
			"revoked": strconv.FormatInt(n, 10),
		}
	})
	return n, nil
}

// CurrentUser returns the directory entry of an authenticated, live session.
func (e *Engine) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	claims, err := e.AuthenticateSession(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if e.directory == nil {
		return &User{ID: claims.UID, Email: claims.Email, Role: Role(claims.Role), Active: true}, nil
	}
	user, err := e.directory.FindByID(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}
