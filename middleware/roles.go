package middleware

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/goOTP/internal/httpx"
	"github.com/MrEthical07/goOTP/permission"
)

// RequireRole admits requests whose access token carries one of roles. Mount it
// behind RequireAccess or RequireSession; without their claims it answers 401.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	denied := "This action requires one of these roles: " + strings.Join(roles, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "Not authenticated")
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, denied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission admits requests whose role grants perm in rm. A nil rm
// denies everything.
func RequirePermission(rm *permission.RoleManager, perm string) func(http.Handler) http.Handler {
	denied := "You don't have permission to: " + perm

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "Not authenticated")
				return
			}
			if !rm.Has(claims.Role, perm) {
				httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, denied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
