package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/httpapi"
	"github.com/MrEthical07/goOTP/internal/config"
	"github.com/MrEthical07/goOTP/internal/factory"
	"github.com/MrEthical07/goOTP/internal/logging"
	promexport "github.com/MrEthical07/goOTP/metrics/export/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the environment")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, "goOTP-server:", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	engineCfg, err := goOTP.LoadConfig(envFile)
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := factory.New(ctx, cfg, engineCfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("shutdown close failed", zap.Error(err))
		}
	}()
	engine := f.Engine()
	logSecurityReport(logger, engine.SecurityReport())

	janitor := goOTP.NewJanitor(engine, cfg.JanitorInterval, logger)
	janitor.Start(ctx)
	defer janitor.Stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		promexport.NewPrometheusExporter(engine),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	routerOpts := f.RouterOptions()
	routerOpts.Logger = logger
	routerOpts.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpapi.NewRouter(engine, routerOpts),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}

func logSecurityReport(logger *zap.Logger, r goOTP.SecurityReport) {
	logger.Info("security posture",
		zap.String("signing_algorithm", r.SigningAlgorithm),
		zap.Duration("access_ttl", r.AccessTTL),
		zap.Duration("session_ttl", r.SessionTTL),
		zap.Int("otp_length", r.OTPLength),
		zap.Duration("otp_expiry", r.OTPExpiry),
		zap.Int("otp_max_attempts", r.OTPMaxAttempts),
		zap.Duration("otp_cooldown", r.OTPCooldown),
		zap.Int("otp_max_per_hour", r.OTPMaxPerHour),
		zap.Bool("separate_otp_secret", r.SeparateOTPSecret),
		zap.String("rate_limit_backend", string(r.RateLimitBackend)),
		zap.Bool("refresh_reuse_revokes", r.RefreshReuseRevokes),
		zap.Bool("subject_reload_on_rotate", r.SubjectReloadOnRotate),
		zap.Bool("audit_enabled", r.AuditEnabled),
	)
	if !r.SeparateOTPSecret {
		logger.Warn("OTP_SECRET unset; code hashes share the JWT secret")
	}
}
