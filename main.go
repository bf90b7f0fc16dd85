// Package main is the entry point for the Nightscout reconciliation service
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/mrcode/nightscout-reconcile/internal/app"
	"github.com/mrcode/nightscout-reconcile/internal/config"
	"github.com/mrcode/nightscout-reconcile/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrNotConfigured) {
			return fmt.Errorf("%w: set NIGHTSCOUT_URL in the environment or a .env file", err)
		}
		return err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: bool(cfg.LogPretty),
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("url", cfg.NightscoutURL).
		Str("env_file", cfg.EnvFile).
		Int("window_min", cfg.WindowMinutes).
		Dur("interval", cfg.RefreshInterval).
		Msg("Starting")
	if err := cfg.CheckCredentials(); err != nil {
		log.Warn().Err(err).Msg("Requests are sent without authentication")
	}

	application, err := app.New(cfg, app.NightscoutSource, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reloadOnHangup(ctx, application, log)

	return application.Run(ctx)
}

// reloadOnHangup re-reads the configuration on SIGHUP
func reloadOnHangup(ctx context.Context, application *app.App, log zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.Reload()
			if err != nil {
				log.Error().Err(err).Msg("Reload failed, keeping current configuration")
				continue
			}
			if err := application.Reload(cfg); err != nil {
				log.Error().Err(err).Msg("Applying reloaded configuration failed")
			}
		}
	}
}
