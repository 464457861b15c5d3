package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/internal/httpx"
	"github.com/MrEthical07/goOTP/middleware"
	"go.uber.org/zap"
)

type requestOTPBody struct {
	Email string `json:"email"`
}

type verifyOTPBody struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	User         *goOTP.User `json:"user"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	FirstLogin   bool        `json:"firstLogin,omitempty"`
}

// RequestOTP handles POST /auth/request-otp.
func (h *Handlers) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var in requestOTPBody
	if err := decodeStrict(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "Invalid request data")
		return
	}

	res, err := h.engine.RequestLoginCode(r.Context(), in.Email)
	switch {
	case errors.Is(err, goOTP.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, codeValidation, "Invalid request data")
		return
	case errors.Is(err, goOTP.ErrUserInactive):
		writeError(w, http.StatusForbidden, codeUserInactive, "Account is deactivated")
		return
	case err != nil:
		h.logger.Error("request otp failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to send OTP")
		return
	}

	if !res.Decision.CanRequest {
		if res.Decision.WaitSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(res.Decision.WaitSeconds))
		}
		msg := res.Decision.Reason
		if msg == "" {
			msg = "Too many requests"
		}
		writeError(w, http.StatusTooManyRequests, codeRateLimited, msg)
		return
	}

	writeData(w, "OTP sent to your email", map[string]int64{"otpSentAt": res.OTPSentAt.Unix()})
}

// VerifyOTP handles POST /auth/verify-otp and sets the token cookies on success.
func (h *Handlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var in verifyOTPBody
	if err := decodeStrict(r, &in); err != nil || strings.TrimSpace(in.Code) == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "Invalid request data")
		return
	}

	res, err := h.engine.Login(r.Context(), in.Email, strings.TrimSpace(in.Code))
	switch {
	case errors.Is(err, goOTP.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, codeValidation, "Invalid request data")
		return
	case errors.Is(err, goOTP.ErrUserNotFound):
		writeError(w, http.StatusNotFound, codeUserNotFound, "User not found")
		return
	case errors.Is(err, goOTP.ErrUserInactive):
		writeError(w, http.StatusForbidden, codeUserInactive, "Account is deactivated")
		return
	case err != nil:
		h.logger.Error("verify otp failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Authentication failed")
		return
	}

	if !res.Verification.Success {
		writeError(w, http.StatusUnauthorized, codeInvalidOTP, res.Verification.Error)
		return
	}

	h.setTokenCookies(w, res.Tokens.AccessToken, res.Tokens.RefreshToken)
	writeData(w, "", authResponse{
		User:         res.User,
		Token:        res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		ExpiresAt:    res.Session.ExpiresAt,
		FirstLogin:   res.FirstLogin,
	})
}

// Refresh handles POST /auth/refresh. The refresh token comes from the body or,
// when the body is empty, from the refresh_token cookie.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshBody
	if r.ContentLength != 0 {
		if err := decodeStrict(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "Invalid refresh token")
			return
		}
	}
	if in.RefreshToken == "" {
		if c, err := r.Cookie(middleware.RefreshCookie); err == nil {
			in.RefreshToken = c.Value
		}
	}
	if in.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "Invalid refresh token")
		return
	}

	pair, err := h.engine.RefreshTokens(r.Context(), in.RefreshToken)
	if err != nil {
		h.logger.Error("refresh failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Token refresh failed")
		return
	}
	if pair == nil {
		writeError(w, http.StatusUnauthorized, codeInvalidToken, "Invalid or expired refresh token")
		return
	}

	// The old token is spent once rotation succeeds, so the new pair is always
	// returned. The user record is best-effort.
	h.setTokenCookies(w, pair.AccessToken, pair.RefreshToken)
	user, err := h.engine.CurrentUser(r.Context(), pair.AccessToken)
	if err != nil {
		h.logger.Warn("load user after refresh failed", zap.Error(err))
	}
	writeData(w, "", authResponse{
		User:         user,
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	})
}

// Logout handles POST /auth/logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromContext(r.Context())
	if err := h.engine.Logout(r.Context(), token); err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Logout failed")
		return
	}
	h.clearTokenCookies(w)
	writeData(w, "Logged out successfully", nil)
}

// LogoutAll handles POST /auth/logout-all.
func (h *Handlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromContext(r.Context())
	n, err := h.engine.LogoutAll(r.Context(), token)
	if err != nil {
		h.logger.Error("logout all failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Logout failed")
		return
	}
	h.clearTokenCookies(w)
	writeData(w, "Logged out of all sessions", map[string]int64{"revoked": n})
}

// Me handles GET /auth/me.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromContext(r.Context())
	user, err := h.engine.CurrentUser(r.Context(), token)
	if err != nil {
		if errors.Is(err, goOTP.ErrUnauthorized) {
			writeError(w, http.StatusNotFound, codeUserNotFound, "User not found")
			return
		}
		h.logger.Error("current user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to get user information")
		return
	}
	writeData(w, "", map[string]*goOTP.User{"user": user})
}

// Sessions handles GET /auth/sessions.
func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromContext(r.Context())
	list, err := h.engine.ListActiveSessions(r.Context(), token)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to list sessions")
		return
	}
	writeData(w, "", map[string][]goOTP.SessionInfo{"sessions": list})
}

// SecurityReport handles GET /admin/security-report.
func (h *Handlers) SecurityReport(w http.ResponseWriter, r *http.Request) {
	writeData(w, "", map[string]goOTP.SecurityReport{"report": h.engine.SecurityReport()})
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Health(r.Context())
	code := http.StatusOK
	if !status.StoreAvailable {
		code = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, code, status)
}
