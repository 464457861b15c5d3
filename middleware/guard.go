package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/internal/httpx"
	"github.com/MrEthical07/goOTP/jwt"
)

// Cookie names shared with the HTTP API.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// Authenticator is the part of *goOTP.Engine the guards need.
type Authenticator interface {
	VerifyAccessToken(accessToken string) *jwt.AccessClaims
	AuthenticateSession(ctx context.Context, accessToken string) (*jwt.AccessClaims, error)
}

type claimsContextKey struct{}
type tokenContextKey struct{}

// ClaimsFromContext returns the claims injected by a guard.
func ClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return claims, ok
}

// TokenFromContext returns the raw access token accepted by a guard.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey{}).(string)
	return token, ok
}

type verifyFunc func(r *http.Request, token string) (*jwt.AccessClaims, error)

func guard(verify verifyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := AccessToken(r)
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeMissingToken, "Authorization token required")
				return
			}

			claims, err := verify(r, token)
			if err != nil {
				if errors.Is(err, goOTP.ErrUnauthorized) {
					httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeInvalidToken, "Invalid or expired token")
					return
				}
				httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeAuthError, "Authentication failed")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			ctx = context.WithValue(ctx, tokenContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessToken extracts the access token from the bearer header or the
// access_token cookie.
func AccessToken(r *http.Request) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// ClientInfo records the caller's IP and User-Agent in the request context.
// Mount it after a real-IP middleware when running behind a proxy.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := goOTP.WithClientIP(r.Context(), ip)
		ctx = goOTP.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
