package middleware

import (
	"net/http"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/jwt"
)

// RequireSession additionally requires the token's session to be live. Store
// failures answer 500 rather than 401.
func RequireSession(auth Authenticator) func(http.Handler) http.Handler {
	return guard(func(r *http.Request, token string) (*jwt.AccessClaims, error) {
		if auth == nil {
			return nil, goOTP.ErrUnauthorized
		}
		return auth.AuthenticateSession(r.Context(), token)
	})
}
