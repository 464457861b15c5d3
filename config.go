package goOTP

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/otp"
	"github.com/MrEthical07/goOTP/session"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the engine configuration. Every field can be set from the
// environment; see LoadConfig.
type Config struct {
	JWT       JWTConfig
	OTP       OTPConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	// OperationTimeout bounds each store call when the caller's context has no deadline.
	OperationTimeout time.Duration `env:"STORE_OPERATION_TIMEOUT" env-default:"5s"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access-token signing.
type JWTConfig struct {
	Secret    string        `env:"JWT_SECRET"`
	Algorithm string        `env:"JWT_ALGORITHM" env-default:"HS256"`
	AccessTTL time.Duration `env:"JWT_ACCESS_TTL" env-default:"15m"`
	Issuer    string        `env:"JWT_ISSUER"`
	Audience  string        `env:"JWT_AUDIENCE"`
	// PrivateKey and PublicKey are Ed25519 keys used when Algorithm is EdDSA.
	PrivateKey []byte
	PublicKey  []byte
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls code issuance and verification.
type OTPConfig struct {
	// Secret is mixed into code hashes. Empty means JWT.Secret.
	Secret          string        `env:"OTP_SECRET"`
	Length          int           `env:"OTP_LENGTH" env-default:"6"`
	ExpiryMinutes   int           `env:"OTP_EXPIRY_MINUTES" env-default:"10"`
	MaxAttempts     int           `env:"OTP_MAX_ATTEMPTS" env-default:"5"`
	CooldownSeconds int           `env:"OTP_COOLDOWN_SECONDS" env-default:"60"`
	MaxPerHour      int           `env:"OTP_MAX_PER_HOUR" env-default:"5"`
	UsedRetention   time.Duration `env:"OTP_USED_RETENTION" env-default:"24h"`
	RedisPrefix     string        `env:"OTP_REDIS_PREFIX" env-default:"otp"`
	SendWelcome     bool          `env:"OTP_SEND_WELCOME" env-default:"true"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls refresh sessions.
type SessionConfig struct {
	TTL           time.Duration `env:"SESSION_TTL" env-default:"168h"`
	RevokeOnReuse bool          `env:"SESSION_REVOKE_ON_REUSE" env-default:"true"`
	RedisPrefix   string        `env:"SESSION_REDIS_PREFIX" env-default:"sess"`
	// ReloadSubject re-reads email, role and active status from the user
	// directory on every refresh. Deactivated users then cannot refresh.
	ReloadSubject bool `env:"SESSION_RELOAD_SUBJECT" env-default:"false"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitBackend selects where OTP request history is counted.
type RateLimitBackend string

const (
	// RateLimitStore counts creations recorded by the OTP store itself.
	RateLimitStore RateLimitBackend = "store"
	// RateLimitRedis counts in a dedicated Redis sliding window.
	RateLimitRedis RateLimitBackend = "redis"
)

// RateLimitConfig selects the OTP request limiter.
type RateLimitConfig struct {
	Backend     RateLimitBackend `env:"RATE_LIMIT_BACKEND" env-default:"store"`
	RedisPrefix string           `env:"RATE_LIMIT_REDIS_PREFIX" env-default:"otprl"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"AUDIT_ENABLED" env-default:"true"`
	BufferSize int  `env:"AUDIT_BUFFER" env-default:"1024"`
	DropIfFull bool `env:"AUDIT_DROP_IF_FULL" env-default:"true"`
	// SinkTimeout bounds each sink call so a stalled transport cannot hold the queue.
	SinkTimeout time.Duration `env:"AUDIT_SINK_TIMEOUT" env-default:"5s"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"METRICS_ENABLED" env-default:"true"`
	EnableLatencyHistograms bool `env:"METRICS_LATENCY_HISTOGRAMS" env-default:"false"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the documented defaults. JWT.Secret is left empty and
// must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Algorithm: string(jwt.MethodHS256),
			AccessTTL: 15 * time.Minute,
		},
		OTP: OTPConfig{
			Length:          6,
			ExpiryMinutes:   10,
			MaxAttempts:     5,
			CooldownSeconds: 60,
			MaxPerHour:      5,
			UsedRetention:   24 * time.Hour,
			RedisPrefix:     "otp",
			SendWelcome:     true,
		},
		Session: SessionConfig{
			TTL:           7 * 24 * time.Hour,
			RevokeOnReuse: true,
			RedisPrefix:   "sess",
		},
		RateLimit: RateLimitConfig{
			Backend:     RateLimitStore,
			RedisPrefix: "otprl",
		},
		Audit: AuditConfig{
			Enabled:     true,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		OperationTimeout: 5 * time.Second,
	}
}

/*
====================================
LOADING
====================================
*/

// LoadConfig reads configuration from the environment. When envFile is not
// empty and exists it is loaded first; variables already set in the process
// environment win.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run safely with. A missing
// HMAC secret is always fatal.
func (c Config) Validate() error {
	switch c.signingMethod() {
	case jwt.MethodHS256, jwt.MethodHS384, jwt.MethodHS512:
		if c.JWT.Secret == "" {
			return ErrMissingSigningSecret
		}
	case jwt.MethodEdDSA:
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("EdDSA signing requires a private key")
		}
		if c.OTP.Secret == "" && c.JWT.Secret == "" {
			return errors.New("OTP secret is required when JWT secret is unset")
		}
	default:
		return fmt.Errorf("unsupported JWT algorithm %q", c.JWT.Algorithm)
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT access TTL must be > 0")
	}

	if err := c.otpConfig().Validate(); err != nil {
		return err
	}
	if err := c.sessionConfig().Validate(); err != nil {
		return err
	}
	if c.Session.TTL < c.JWT.AccessTTL {
		return errors.New("session TTL must not be shorter than the access token TTL")
	}

	switch c.RateLimit.Backend {
	case RateLimitStore, RateLimitRedis:
	default:
		return fmt.Errorf("unsupported rate limit backend %q", c.RateLimit.Backend)
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be > 0")
	}
	if c.OperationTimeout < 0 {
		return errors.New("operation timeout must be >= 0")
	}
	return nil
}

func (c Config) signingMethod() jwt.SigningMethod {
	alg := strings.TrimSpace(c.JWT.Algorithm)
	if strings.EqualFold(alg, string(jwt.MethodEdDSA)) {
		return jwt.MethodEdDSA
	}
	return jwt.SigningMethod(strings.ToUpper(alg))
}

func (c Config) jwtConfig() jwt.Config {
	return jwt.Config{
		AccessTTL:     c.JWT.AccessTTL,
		SigningMethod: c.signingMethod(),
		Secret:        []byte(c.JWT.Secret),
		PrivateKey:    cloneBytes(c.JWT.PrivateKey),
		PublicKey:     cloneBytes(c.JWT.PublicKey),
		Issuer:        c.JWT.Issuer,
		Audience:      c.JWT.Audience,
	}
}

func (c Config) otpConfig() otp.Config {
	secret := c.OTP.Secret
	if secret == "" {
		secret = c.JWT.Secret
	}
	return otp.Config{
		Length:           c.OTP.Length,
		Expiry:           time.Duration(c.OTP.ExpiryMinutes) * time.Minute,
		MaxAttempts:      c.OTP.MaxAttempts,
		Cooldown:         time.Duration(c.OTP.CooldownSeconds) * time.Second,
		MaxPerHour:       c.OTP.MaxPerHour,
		UsedRetention:    c.OTP.UsedRetention,
		Secret:           []byte(secret),
		OperationTimeout: c.OperationTimeout,
	}
}

func (c Config) sessionConfig() session.Config {
	return session.Config{
		TTL:              c.Session.TTL,
		RevokeOnReuse:    c.Session.RevokeOnReuse,
		OperationTimeout: c.OperationTimeout,
	}
}

func (c Config) ratePolicy() otp.Policy {
	return otp.Policy{
		Cooldown:   time.Duration(c.OTP.CooldownSeconds) * time.Second,
		MaxPerHour: c.OTP.MaxPerHour,
	}
}

func cloneConfig(c Config) Config {
	out := c
	out.JWT.PrivateKey = cloneBytes(c.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(c.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
