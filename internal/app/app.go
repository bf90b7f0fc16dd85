// Package app wires the refresh loop and its outputs together
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mrcode/nightscout-reconcile/internal/config"
	"github.com/mrcode/nightscout-reconcile/internal/models"
	"github.com/mrcode/nightscout-reconcile/internal/nightscout"
	"github.com/mrcode/nightscout-reconcile/internal/notifications"
	"github.com/mrcode/nightscout-reconcile/internal/pipeline"
	"github.com/mrcode/nightscout-reconcile/internal/statusapi"
	"github.com/mrcode/nightscout-reconcile/internal/tray"
)

const (
	shutdownTimeout = 5 * time.Second
	probeTimeout    = 10 * time.Second
)

// SourceFactory builds the data source for a configuration
type SourceFactory func(cfg *config.Config, log zerolog.Logger) pipeline.Source

// NightscoutSource is the production SourceFactory
func NightscoutSource(cfg *config.Config, log zerolog.Logger) pipeline.Source {
	return nightscout.NewClient(ClientOptions(cfg), log)
}

// ClientOptions maps configuration onto client options
func ClientOptions(cfg *config.Config) nightscout.Options {
	retry := nightscout.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Retries
	retry.Backoff = cfg.RetryBackoff()

	return nightscout.Options{
		BaseURL:        cfg.NightscoutURL,
		Token:          cfg.Token,
		APISecret:      cfg.Secret(),
		ConnectTimeout: cfg.ConnectTimeout(),
		ReadTimeout:    cfg.ReadTimeout(),
		Retry:          retry,
		VerifySSL:      bool(cfg.VerifySSL),
	}
}

// AlerterFactory builds the alerter for a repeat interval
type AlerterFactory func(repeat time.Duration, log zerolog.Logger) Alerter

// DesktopAlerts is the production AlerterFactory
func DesktopAlerts(repeat time.Duration, log zerolog.Logger) Alerter {
	return notifications.NewManager(repeat, log)
}

// testNotifier is implemented by alerters that can confirm delivery
type testNotifier interface {
	SendTestNotification() error
}

// StatusChecker is implemented by sources that report server status
type StatusChecker interface {
	Status(ctx context.Context) (*models.ServerStatus, error)
}

// App represents the running service
type App struct {
	newSource  SourceFactory
	newAlerter AlerterFactory
	service    *Service
	scheduler  *Scheduler
	server     *statusapi.Server
	log        zerolog.Logger

	// mu guards the fields below, Reload runs on its own goroutine
	mu          sync.Mutex
	source      pipeline.Source
	entryID     cron.EntryID
	interval    time.Duration
	alertsOn    bool
	alertRepeat time.Duration
}

// New creates the application for cfg
func New(cfg *config.Config, newSource SourceFactory, log zerolog.Logger) (*App, error) {
	icons, err := tray.NewIconGenerator(log)
	if err != nil {
		return nil, fmt.Errorf("creating icon generator: %w", err)
	}

	a := &App{
		newSource:  newSource,
		newAlerter: DesktopAlerts,
		scheduler:  NewScheduler(log),
		log:        log.With().Str("component", "app").Logger(),
	}
	a.source = newSource(cfg, log)
	a.service = NewService(cfg, pipeline.New(a.source, log), icons, nil, log)
	a.applyAlerts(cfg, false)

	if cfg.StatusAddr != "" {
		a.server = statusapi.New(statusapi.Config{
			Addr:     cfg.StatusAddr,
			Log:      log,
			Provider: a.service,
			Icons:    icons,
		})
	}
	return a, nil
}

// Service returns the refresh service
func (a *App) Service() *Service {
	return a.service
}

// Run refreshes once, then on every interval until ctx is done
func (a *App) Run(ctx context.Context) error {
	a.service.bind(ctx)

	a.mu.Lock()
	err := a.schedule(a.service.Config().RefreshInterval)
	a.mu.Unlock()
	if err != nil {
		return err
	}

	a.probe(ctx)

	// the first failure is logged, the loop keeps retrying
	_ = a.scheduler.RunNow(a.service)
	a.scheduler.Start()

	errCh := make(chan error, 1)
	if a.server != nil {
		go func() {
			errCh <- a.server.Start()
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("status server: %w", err)
		}
	}

	a.scheduler.Stop()
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("Status server shutdown failed")
		}
	}

	a.log.Info().Msg("Stopped")
	return runErr
}

// Reload applies a new configuration. It is safe to call while Run is
// active. The status address only changes on restart.
func (a *App) Reload(cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.source = a.newSource(cfg, a.log)
	a.service.Update(cfg, pipeline.New(a.source, a.log))
	a.applyAlerts(cfg, true)
	if cfg.RefreshInterval != a.interval {
		if err := a.schedule(cfg.RefreshInterval); err != nil {
			return err
		}
	}
	a.log.Info().
		Str("env_file", cfg.EnvFile).
		Int("jobs", a.scheduler.Len()).
		Msg("Configuration reloaded")
	return nil
}

// applyAlerts switches alerts on or off and rebuilds the alerter when the
// repeat interval changed. Switching them on during a reload sends a test
// notification. Callers hold mu, except New.
func (a *App) applyAlerts(cfg *config.Config, reload bool) {
	enabled := bool(cfg.EnableAlerts)
	repeat := cfg.AlertRepeat()
	if enabled == a.alertsOn && repeat == a.alertRepeat {
		return
	}
	wasOn := a.alertsOn
	a.alertsOn, a.alertRepeat = enabled, repeat

	if !enabled {
		a.service.SetAlerter(nil)
		if wasOn {
			a.log.Info().Msg("Alerts disabled")
		}
		return
	}

	alerter := a.newAlerter(repeat, a.log)
	a.service.SetAlerter(alerter)
	if reload && !wasOn {
		if tn, ok := alerter.(testNotifier); ok {
			if err := tn.SendTestNotification(); err != nil {
				a.log.Warn().Err(err).Msg("Test notification failed")
			}
		}
	}
	a.log.Info().Dur("repeat", repeat).Msg("Alerts enabled")
}

// probe logs which server the source talks to. Failure is not fatal.
func (a *App) probe(ctx context.Context) {
	a.mu.Lock()
	source := a.source
	a.mu.Unlock()

	checker, ok := source.(StatusChecker)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	status, err := checker.Status(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("Nightscout status check failed")
		return
	}
	a.log.Info().
		Str("name", status.Name).
		Str("version", status.Version).
		Str("units", status.Settings.Units).
		Msg("Connected to Nightscout")
}

// schedule replaces the refresh entry. Callers hold mu.
func (a *App) schedule(interval time.Duration) error {
	if a.entryID != 0 {
		a.scheduler.Remove(a.entryID)
	}
	id, err := a.scheduler.AddJob("@every "+interval.String(), a.service)
	if err != nil {
		return fmt.Errorf("scheduling refresh: %w", err)
	}
	a.entryID = id
	a.interval = interval
	return nil
}
