// Package httpapi serves the passwordless login flow over HTTP: code
// requests, code verification, token refresh and logout.
package httpapi

import (
	"net/http"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/middleware"
	"github.com/MrEthical07/goOTP/permission"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Options configures NewRouter.
type Options struct {
	Logger         *zap.Logger
	AllowedOrigins []string
	// CookieSecure sets the Secure attribute on token cookies. Disable only for
	// plain-HTTP development.
	CookieSecure bool
	// Timeout bounds each request. Zero disables it.
	Timeout time.Duration
	// Metrics, when set, is mounted at GET /metrics.
	Metrics http.Handler
	// AuthThrottle limits request-otp and verify-otp per client IP, sharing one
	// budget. RefreshThrottle does the same for refresh. Nil disables either.
	AuthThrottle    Throttler
	RefreshThrottle Throttler
	// Roles gates the admin routes. Nil means permission.MustDefault().
	Roles *permission.RoleManager
}

// Handlers holds the dependencies of the auth endpoints.
type Handlers struct {
	engine       *goOTP.Engine
	logger       *zap.Logger
	cookieSecure bool
}

// NewRouter builds the chi router with the middleware chain and routes.
func NewRouter(engine *goOTP.Engine, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handlers{engine: engine, logger: logger.Named("http"), cookieSecure: opts.CookieSecure}

	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		requestLogger(h.logger),
		chimw.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		securityHeaders,
		middleware.ClientInfo,
	)
	if opts.Timeout > 0 {
		r.Use(chimw.Timeout(opts.Timeout))
	}

	r.Get("/healthz", h.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	roles := opts.Roles
	if roles == nil {
		roles = permission.MustDefault()
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(h.throttleIP(opts.AuthThrottle)).Post("/request-otp", h.RequestOTP)
		r.With(h.throttleIP(opts.AuthThrottle)).Post("/verify-otp", h.VerifyOTP)
		r.With(h.throttleIP(opts.RefreshThrottle)).Post("/refresh", h.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(engine))
			r.Post("/logout", h.Logout)
			r.Post("/logout-all", h.LogoutAll)
			r.Get("/me", h.Me)
			r.Get("/sessions", h.Sessions)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireSession(engine))
		r.With(middleware.RequirePermission(roles, permission.ViewAnalytics)).
			Get("/security-report", h.SecurityReport)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("X-Content-Type-Options", "nosniff")
		hdr.Set("X-Frame-Options", "DENY")
		hdr.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		hdr.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
