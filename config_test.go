package goOTP

import (
	"crypto/ed25519"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigNeedsSecret(t *testing.T) {
	if err := DefaultConfig().Validate(); !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected ErrMissingSigningSecret, got %v", err)
	}
	if err := testConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"algorithm":       func(c *Config) { c.JWT.Algorithm = "none" },
		"access ttl":      func(c *Config) { c.JWT.AccessTTL = 0 },
		"otp length":      func(c *Config) { c.OTP.Length = 3 },
		"otp attempts":    func(c *Config) { c.OTP.MaxAttempts = 0 },
		"negative limits": func(c *Config) { c.OTP.CooldownSeconds = -1 },
		"session ttl":     func(c *Config) { c.Session.TTL = time.Minute },
		"backend":         func(c *Config) { c.RateLimit.Backend = "memcached" },
		"audit buffer":    func(c *Config) { c.Audit.BufferSize = 0 },
		"timeout":         func(c *Config) { c.OperationTimeout = -time.Second },
	}
	for name, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestConfigAlgorithmIsCaseInsensitive(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Algorithm = "hs512"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected hs512 accepted, got %v", err)
	}
}

func TestConfigEdDSA(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := DefaultConfig()
	cfg.JWT.Algorithm = "eddsa"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing private key error")
	}
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing OTP secret error")
	}
	cfg.OTP.Secret = "otp-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid EdDSA config, got %v", err)
	}
}

func TestOTPSecretFallsBackToJWTSecret(t *testing.T) {
	cfg := testConfig()
	if got := string(cfg.otpConfig().Secret); got != testSecret {
		t.Fatalf("expected JWT secret fallback, got %q", got)
	}
	cfg.OTP.Secret = "separate"
	if got := string(cfg.otpConfig().Secret); got != "separate" {
		t.Fatalf("expected OTP secret, got %q", got)
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.PrivateKey = []byte{1, 2, 3}
	clone := cloneConfig(cfg)
	clone.JWT.PrivateKey[0] = 9
	if cfg.JWT.PrivateKey[0] != 1 {
		t.Fatal("clone shares key bytes")
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("OTP_LENGTH", "8")
	t.Setenv("OTP_COOLDOWN_SECONDS", "30")
	t.Setenv("SESSION_TTL", "72h")
	t.Setenv("RATE_LIMIT_BACKEND", "redis")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OTP.Length != 8 || cfg.OTP.CooldownSeconds != 30 {
		t.Fatalf("unexpected otp config %+v", cfg.OTP)
	}
	if cfg.Session.TTL != 72*time.Hour || !cfg.Session.RevokeOnReuse {
		t.Fatalf("unexpected session config %+v", cfg.Session)
	}
	if cfg.RateLimit.Backend != RateLimitRedis {
		t.Fatalf("unexpected backend %q", cfg.RateLimit.Backend)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute || cfg.OTP.MaxPerHour != 5 || cfg.OperationTimeout != 5*time.Second {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfigMissingSecretFails(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.env")); !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected ErrMissingSigningSecret, got %v", err)
	}
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	const key = "GOOTP_TEST_UNUSED"
	path := filepath.Join(t.TempDir(), ".env")
	content := "JWT_SECRET=" + testSecret + "\nOTP_MAX_ATTEMPTS=3\n" + key + "=1\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// godotenv never overrides variables that are already set, so clear
	// the ones this test owns and unset them afterwards.
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	t.Setenv("OTP_MAX_ATTEMPTS", "")
	os.Unsetenv("OTP_MAX_ATTEMPTS")
	t.Cleanup(func() { os.Unsetenv(key) })

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWT.Secret != testSecret || cfg.OTP.MaxAttempts != 3 {
		t.Fatalf("env file not applied: secret=%q attempts=%d", cfg.JWT.Secret, cfg.OTP.MaxAttempts)
	}
}
