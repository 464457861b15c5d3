// Command goOTP-cleanup runs one purge of expired codes and sessions and exits.
// It is meant for cron when the server's janitor is disabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/internal/config"
	"github.com/MrEthical07/goOTP/internal/factory"
	"github.com/MrEthical07/goOTP/internal/logging"
	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the environment")
	timeout := flag.Duration("timeout", 2*time.Minute, "upper bound for the whole sweep")
	flag.Parse()

	if err := run(*envFile, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "goOTP-cleanup:", err)
		os.Exit(1)
	}
}

func run(envFile string, timeout time.Duration) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	engineCfg, err := goOTP.LoadConfig(envFile)
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	// A one-shot sweep has no use for the audit pipeline.
	engineCfg.Audit.Enabled = false

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	f, err := factory.New(ctx, cfg, engineCfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	codes, sessions := goOTP.NewJanitor(f.Engine(), 0, logger).Sweep(ctx)
	logger.Info("cleanup complete", zap.Int64("otp_deleted", codes), zap.Int64("sessions_deleted", sessions))
	return nil
}
