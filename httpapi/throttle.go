package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"go.uber.org/zap"
)

// Throttler counts one request for key and reports whether it is admitted and,
// if not, how long until it would be. *rate.FixedWindow implements it.
type Throttler interface {
	Hit(ctx context.Context, key string) (bool, time.Duration, error)
}

// throttleIP refuses callers over budget with 429 RATE_LIMITED. A Throttler
// error lets the request through so a Redis outage does not take login down.
func (h *Handlers) throttleIP(t Throttler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if t == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := goOTP.ClientIPFromContext(r.Context())
			if ip == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, retry, err := t.Hit(r.Context(), ip)
			if err != nil {
				h.logger.Warn("ip throttle unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				wait := int((retry + time.Second - 1) / time.Second)
				if wait < 1 {
					wait = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(wait))
				writeError(w, http.StatusTooManyRequests, codeRateLimited,
					"Too many requests. Try again in "+strconv.Itoa(wait)+" seconds.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
