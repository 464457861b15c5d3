package goOTP

import (
	"context"
	"testing"

	"github.com/MrEthical07/goOTP/otp"
	"github.com/MrEthical07/goOTP/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBenchmarkEngine(b *testing.B) *Engine {
	b.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	cfg.Audit.Enabled = false
	cfg.OTP.CooldownSeconds = 0
	cfg.OTP.MaxPerHour = 0
	engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	b.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return engine
}

func BenchmarkVerifyAccessToken(b *testing.B) {
	engine := newBenchmarkEngine(b)
	c, err := engine.CreateSession(context.Background(), session.Subject{UserID: "u1"}, session.Device{})
	if err != nil {
		b.Fatalf("create session failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if engine.VerifyAccessToken(c.Tokens.AccessToken) == nil {
			b.Fatal("verify failed")
		}
	}
}

func BenchmarkValidateSession(b *testing.B) {
	engine := newBenchmarkEngine(b)
	c, err := engine.CreateSession(context.Background(), session.Subject{UserID: "u1"}, session.Device{})
	if err != nil {
		b.Fatalf("create session failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if s, err := engine.ValidateSession(context.Background(), c.Session.ID); err != nil || s == nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	engine := newBenchmarkEngine(b)
	c, err := engine.CreateSession(context.Background(), session.Subject{UserID: "u1"}, session.Device{})
	if err != nil {
		b.Fatalf("create session failed: %v", err)
	}
	refresh := c.Tokens.RefreshToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err := engine.RefreshTokens(context.Background(), refresh)
		if err != nil || pair == nil {
			b.Fatalf("refresh failed: %v", err)
		}
		refresh = pair.RefreshToken
	}
}

func BenchmarkCreateAndVerifyOTP(b *testing.B) {
	engine := newBenchmarkEngine(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		code, err := engine.CreateOTP(ctx, "u1", otp.TypeLogin)
		if err != nil {
			b.Fatalf("create failed: %v", err)
		}
		if res, err := engine.VerifyOTP(ctx, "u1", code, otp.TypeLogin); err != nil || !res.Success {
			b.Fatalf("verify failed: %+v %v", res, err)
		}
	}
}
