package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrEthical07/goOTP/internal/httpx"
	"github.com/MrEthical07/goOTP/middleware"
)

// Error codes carried in the response envelope.
const (
	codeValidation   = "VALIDATION_ERROR"
	codeUserNotFound = "USER_NOT_FOUND"
	codeUserInactive = "USER_INACTIVE"
	codeRateLimited  = httpx.CodeRateLimited
	codeInvalidOTP   = "INVALID_OTP"
	codeInvalidToken = httpx.CodeInvalidToken
	codeInternal     = httpx.CodeInternal
)

const (
	accessCookieMaxAge  = 15 * time.Minute
	refreshCookieMaxAge = 7 * 24 * time.Hour
)

func writeData(w http.ResponseWriter, message string, data interface{}) {
	httpx.WriteData(w, message, data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(w, status, code, message)
}

// decodeStrict rejects unknown fields and bodies over 64 KiB.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

func (h *Handlers) setTokenCookies(w http.ResponseWriter, access, refresh string) {
	http.SetCookie(w, h.cookie(middleware.AccessCookie, access, accessCookieMaxAge))
	http.SetCookie(w, h.cookie(middleware.RefreshCookie, refresh, refreshCookieMaxAge))
}

func (h *Handlers) clearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, h.cookie(middleware.AccessCookie, "", 0))
	http.SetCookie(w, h.cookie(middleware.RefreshCookie, "", 0))
}

func (h *Handlers) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(maxAge / time.Second),
	}
	if maxAge == 0 {
		c.MaxAge = -1
	}
	return c
}
