// Package factory wires the goOTP engine and its backends from deployment
// configuration. Both binaries build through it.
package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/delivery"
	kafkapub "github.com/MrEthical07/goOTP/delivery/kafka"
	"github.com/MrEthical07/goOTP/httpapi"
	"github.com/MrEthical07/goOTP/internal/config"
	"github.com/MrEthical07/goOTP/internal/logging"
	"github.com/MrEthical07/goOTP/internal/rate"
	"github.com/MrEthical07/goOTP/store/postgres"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Factory owns the engine and every client it was built on.
type Factory struct {
	config *config.Config
	engine *goOTP.Engine
	logger *zap.Logger

	authThrottle    *rate.FixedWindow
	refreshThrottle *rate.FixedWindow

	closers []func() error

	closeOnce sync.Once
	closeErr  error
}

// Option customizes New.
type Option func(*options)

type options struct {
	redis  *redis.Client
	sender delivery.Sender
	now    func() time.Time
}

// WithRedisClient uses client instead of dialing Redis.URL. The factory does
// not close it.
func WithRedisClient(client *redis.Client) Option {
	return func(o *options) { o.redis = client }
}

// WithSender overrides the code sender chosen from configuration.
func WithSender(s delivery.Sender) Option {
	return func(o *options) { o.sender = s }
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New connects the configured backends and builds the engine. On error every
// client opened so far is closed.
func New(ctx context.Context, cfg *config.Config, engineCfg goOTP.Config, logger *zap.Logger, opts ...Option) (*Factory, error) {
	if cfg == nil {
		return nil, errors.New("factory: nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	f := &Factory{config: cfg, logger: logger}
	if err := f.build(ctx, engineCfg, o); err != nil {
		_ = f.Close()
		return nil, err
	}

	logger.Info("factory initialized",
		zap.String("env", cfg.Env),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Bool("kafka", cfg.Kafka.Enabled()),
	)
	return f, nil
}

func (f *Factory) build(ctx context.Context, engineCfg goOTP.Config, o options) error {
	b := goOTP.New().
		WithConfig(engineCfg).
		WithLogger(f.logger)
	if o.now != nil {
		b = b.WithClock(o.now)
	}

	engineRedis := f.config.StoreBackend == config.BackendRedis ||
		engineCfg.RateLimit.Backend == goOTP.RateLimitRedis
	if engineRedis || f.config.HTTP.ThrottleEnabled() {
		client, err := f.connectRedis(ctx, o.redis)
		if err != nil {
			return err
		}
		if engineRedis {
			b = b.WithRedis(client)
		}
		f.throttles(client)
	}

	if f.config.StoreBackend == config.BackendPostgres {
		db, err := f.connectPostgres(ctx)
		if err != nil {
			return err
		}
		b = b.WithStores(postgres.NewOTPStore(db), postgres.NewSessionStore(db)).
			WithDirectory(postgres.NewDirectory(db))
	}

	sender := o.sender
	if sender == nil {
		sender = f.sender()
	}
	b = b.WithSender(sender)

	if sink := f.auditSink(); sink != nil {
		b = b.WithAuditSink(sink)
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	f.engine = engine
	return nil
}

func (f *Factory) throttles(client *redis.Client) {
	h := f.config.HTTP
	if h.AuthRateLimit > 0 {
		f.authThrottle = rate.NewFixedWindow(client, h.RateLimitPrefix+":auth", h.AuthRateLimit, h.AuthRateWindow)
	}
	if h.RefreshRateLimit > 0 {
		f.refreshThrottle = rate.NewFixedWindow(client, h.RateLimitPrefix+":refresh", h.RefreshRateLimit, h.RefreshRateWindow)
	}
}

func (f *Factory) connectRedis(ctx context.Context, existing *redis.Client) (*redis.Client, error) {
	if existing != nil {
		return existing, nil
	}
	opts, err := redis.ParseURL(f.config.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	f.closers = append(f.closers, client.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	f.logger.Info("redis client initialized", zap.String("addr", opts.Addr))
	return client, nil
}

func (f *Factory) connectPostgres(ctx context.Context) (*gorm.DB, error) {
	level := gormlogger.Silent
	if f.config.Env != logging.EnvProduction {
		level = gormlogger.Warn
	}
	db, err := postgres.Open(ctx, postgres.Options{
		DSN:             f.config.Database.DSN,
		MaxOpenConns:    f.config.Database.MaxOpenConns,
		MaxIdleConns:    f.config.Database.MaxIdleConns,
		ConnMaxLifetime: f.config.Database.ConnMaxLifetime,
		LogLevel:        level,
	})
	if err != nil {
		return nil, err
	}
	f.closers = append(f.closers, func() error { return postgres.Close(db) })

	if f.config.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
	}
	f.logger.Info("postgres initialized", zap.Bool("auto_migrate", f.config.Database.AutoMigrate))
	return db, nil
}

func (f *Factory) sender() delivery.Sender {
	if !f.config.Kafka.Enabled() {
		// Codes are only printed in clear outside production.
		return delivery.NewLogSender(f.logger, f.config.Env != logging.EnvProduction)
	}
	w := kafkapub.NewWriter(f.config.Kafka.Brokers)
	pub := kafkapub.NewPublisher(w, f.config.Kafka.CodeTopic, f.logger)
	f.closers = append(f.closers, pub.Close)
	return pub
}

func (f *Factory) auditSink() goOTP.AuditSink {
	if f.config.Kafka.Enabled() && f.config.Kafka.AuditTopic != "" {
		w := kafkapub.NewWriter(f.config.Kafka.Brokers)
		sink := kafkapub.NewAuditSink(w, f.config.Kafka.AuditTopic, f.logger)
		f.closers = append(f.closers, sink.Close)
		return sink
	}
	return goOTP.NewLoggerSink(f.logger.Named("audit"))
}

// Engine returns the built engine.
func (f *Factory) Engine() *goOTP.Engine { return f.engine }

// RouterOptions returns the httpapi options derived from the deployment
// configuration. Callers add the logger and metrics handler.
func (f *Factory) RouterOptions() httpapi.Options {
	h := f.config.HTTP
	opts := httpapi.Options{
		AllowedOrigins: h.AllowedOrigins,
		CookieSecure:   h.CookieSecure,
		Timeout:        h.WriteTimeout,
	}
	// Only set non-nil limiters; a typed nil would be a non-nil Throttler.
	if f.authThrottle != nil {
		opts.AuthThrottle = f.authThrottle
	}
	if f.refreshThrottle != nil {
		opts.RefreshThrottle = f.refreshThrottle
	}
	return opts
}

// Config returns the deployment configuration.
func (f *Factory) Config() *config.Config { return f.config }

// Close drains the engine and then closes clients in reverse open order.
func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		if f.engine != nil {
			f.engine.Close()
		}
		var errs []error
		for i := len(f.closers) - 1; i >= 0; i-- {
			if err := f.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		f.closeErr = errors.Join(errs...)
	})
	return f.closeErr
}
