package middleware

import (
	"net/http"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/jwt"
)

// RequireAccess accepts any unexpired, correctly signed access token. A revoked
// session keeps passing until its access token expires.
func RequireAccess(auth Authenticator) func(http.Handler) http.Handler {
	return guard(func(_ *http.Request, token string) (*jwt.AccessClaims, error) {
		if auth == nil {
			return nil, goOTP.ErrUnauthorized
		}
		claims := auth.VerifyAccessToken(token)
		if claims == nil {
			return nil, goOTP.ErrUnauthorized
		}
		return claims, nil
	})
}
