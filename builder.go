package goOTP

import (
	"errors"
	"time"

	"github.com/MrEthical07/goOTP/delivery"
	"github.com/MrEthical07/goOTP/internal/audit"
	"github.com/MrEthical07/goOTP/internal/rate"
	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/otp"
	"github.com/MrEthical07/goOTP/session"
	"github.com/MrEthical07/goOTP/token"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	otpStore     otp.Store
	sessionStore session.Store
	directory    Directory
	sender       delivery.Sender
	auditSink    AuditSink
	logger       *zap.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs every store that was not set explicitly with client: OTP
// records, sessions, the sliding-window limiter and the user directory.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStores sets the OTP and session stores, typically the Postgres ones.
func (b *Builder) WithStores(otpStore otp.Store, sessionStore session.Store) *Builder {
	b.otpStore = otpStore
	b.sessionStore = sessionStore
	return b
}

func (b *Builder) WithDirectory(dir Directory) *Builder {
	b.directory = dir
	return b
}

// WithSender sets where issued login codes are delivered.
func (b *Builder) WithSender(s delivery.Sender) *Builder {
	b.sender = s
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides the time source of every component. Tests use it to
// move past cooldowns and expiries.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- STORES --------
	otpStore, sessionStore := b.otpStore, b.sessionStore
	if otpStore == nil || sessionStore == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or explicit stores required")
		}
		if otpStore == nil {
			otpStore = otp.NewRedisStore(b.redis, cfg.OTP.RedisPrefix, cfg.OTP.UsedRetention)
		}
		if sessionStore == nil {
			sessionStore = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
		}
	}

	directory := b.directory
	if directory == nil && b.redis != nil {
		directory = NewRedisDirectory(b.redis, "")
	}

	// -------- OTP ENGINE --------
	otpOpts := []otp.Option{
		otp.WithClock(now),
		otp.WithLogger(logger.Named("otp")),
	}
	if cfg.RateLimit.Backend == RateLimitRedis {
		if b.redis == nil {
			return nil, errors.New("redis rate limit backend requires redis client")
		}
		otpOpts = append(otpOpts, otp.WithRateLimiter(rate.NewSlidingWindow(b.redis, cfg.RateLimit.RedisPrefix, cfg.ratePolicy())))
	}
	otpEngine, err := otp.NewEngine(cfg.otpConfig(), otpStore, otpOpts...)
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	jwtCfg := cfg.jwtConfig()
	jwtCfg.Now = now
	jm, err := jwt.NewManager(jwtCfg)
	if err != nil {
		return nil, err
	}
	tokens := token.NewService(jm, logger.Named("token"))

	// -------- SESSIONS --------
	sessOpts := []session.Option{
		session.WithClock(now),
		session.WithLogger(logger.Named("session")),
	}
	if cfg.Session.ReloadSubject {
		if directory == nil {
			return nil, errors.New("session subject reload requires a user directory")
		}
		sessOpts = append(sessOpts, session.WithSubjectResolver(directoryResolver{dir: directory}))
	}
	sessions, err := session.NewManager(cfg.sessionConfig(), sessionStore, tokens, sessOpts...)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		otp:          otpEngine,
		tokens:       tokens,
		sessions:     sessions,
		sessionStore: sessionStore,
		directory:    directory,
		sender:       b.sender,
		metrics:      NewMetrics(cfg.Metrics),
		logger:       logger,
		now:          now,
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		SinkTimeout: cfg.Audit.SinkTimeout,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
