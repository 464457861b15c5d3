// Package config loads the deployment settings of the goOTP binaries. Engine
// policy (JWT, OTP, session) is loaded separately by goOTP.LoadConfig.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the deployment configuration.
type Config struct {
	Env      string `env:"APP_ENV" env-default:"development"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	// StoreBackend selects where OTP codes, sessions and users live.
	StoreBackend    string        `env:"STORE_BACKEND" env-default:"redis"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" env-default:"15m"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" env-default:":8080"`
	CookieSecure    bool          `env:"HTTP_COOKIE_SECURE" env-default:"true"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`

	// Per-IP fixed-window throttles kept in Redis. A zero limit disables one.
	AuthRateLimit     int           `env:"HTTP_AUTH_RATE_LIMIT" env-default:"5"`
	AuthRateWindow    time.Duration `env:"HTTP_AUTH_RATE_WINDOW" env-default:"1m"`
	RefreshRateLimit  int           `env:"HTTP_REFRESH_RATE_LIMIT" env-default:"30"`
	RefreshRateWindow time.Duration `env:"HTTP_REFRESH_RATE_WINDOW" env-default:"1m"`
	RateLimitPrefix   string        `env:"HTTP_RATE_LIMIT_PREFIX" env-default:"iprl"`
}

// ThrottleEnabled reports whether either per-IP throttle is on.
func (h HTTPConfig) ThrottleEnabled() bool {
	return h.AuthRateLimit > 0 || h.RefreshRateLimit > 0
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	DSN             string        `env:"DATABASE_DSN"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" env-default:"30m"`
	AutoMigrate     bool          `env:"DATABASE_AUTO_MIGRATE" env-default:"true"`
}

// RedisConfig configures the Redis client.
type RedisConfig struct {
	URL string `env:"REDIS_URL" env-default:"redis://localhost:6379/0"`
}

// KafkaConfig enables code and audit publishing when Brokers is set.
type KafkaConfig struct {
	Brokers    []string `env:"KAFKA_BROKERS" env-separator:","`
	CodeTopic  string   `env:"KAFKA_CODE_TOPIC" env-default:"otp.codes"`
	AuditTopic string   `env:"KAFKA_AUDIT_TOPIC"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// Load reads envFile (if present) into the process environment and then parses
// the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read deployment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case BackendRedis:
		if c.Redis.URL == "" {
			return errors.New("REDIS_URL is required for the redis backend")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return errors.New("DATABASE_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return errors.New("DATABASE_MAX_IDLE_CONNS must not exceed DATABASE_MAX_OPEN_CONNS")
	}
	if c.HTTP.AuthRateLimit < 0 || c.HTTP.RefreshRateLimit < 0 {
		return errors.New("HTTP rate limits must be >= 0")
	}
	if c.HTTP.ThrottleEnabled() && c.Redis.URL == "" {
		return errors.New("REDIS_URL is required for the per-IP throttles")
	}
	if c.JanitorInterval < 0 {
		return errors.New("JANITOR_INTERVAL must be >= 0")
	}
	if c.Kafka.Enabled() && c.Kafka.CodeTopic == "" {
		return errors.New("KAFKA_CODE_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
