package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrcode/nightscout-reconcile/internal/config"
	"github.com/mrcode/nightscout-reconcile/internal/models"
	"github.com/mrcode/nightscout-reconcile/internal/tray"
)

// Runner produces one snapshot per call
type Runner interface {
	Run(ctx context.Context, cfg *config.Config, now time.Time) (*models.Snapshot, error)
}

// Alerter is told about every new snapshot
type Alerter interface {
	CheckAndNotify(snap *models.Snapshot, now time.Time) error
}

// Service runs refresh cycles and keeps the latest result
type Service struct {
	icons *tray.IconGenerator
	now   func() time.Time
	log   zerolog.Logger

	mu                sync.RWMutex
	alerter           Alerter
	ctx               context.Context
	cfg               *config.Config
	runner            Runner
	last              *models.Snapshot
	lastErr           error
	lastSuccessTime   time.Time
	consecutiveErrors int
}

// NewService creates a refresh service. icons and alerter may be nil.
func NewService(cfg *config.Config, runner Runner, icons *tray.IconGenerator, alerter Alerter, log zerolog.Logger) *Service {
	return &Service{
		icons:   icons,
		alerter: alerter,
		now:     time.Now,
		log:     log.With().Str("component", "service").Logger(),
		ctx:     context.Background(),
		cfg:     cfg,
		runner:  runner,
	}
}

// Name implements Job
func (s *Service) Name() string {
	return "refresh"
}

// bind sets the context refresh cycles derive from
func (s *Service) bind(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
}

// Update swaps configuration and runner, used after a reload
func (s *Service) Update(cfg *config.Config, runner Runner) {
	s.mu.Lock()
	s.cfg = cfg
	s.runner = runner
	s.mu.Unlock()
}

// SetAlerter replaces the alerter, nil disables alerts
func (s *Service) SetAlerter(a Alerter) {
	s.mu.Lock()
	s.alerter = a
	s.mu.Unlock()
}

// Config returns the active configuration
func (s *Service) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Run performs one refresh cycle. A cycle is bounded by the refresh
// interval so it never overlaps the next one.
func (s *Service) Run() error {
	s.mu.RLock()
	base, cfg, runner, alerter := s.ctx, s.cfg, s.runner, s.alerter
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(base, cfg.RefreshInterval)
	defer cancel()

	now := s.now()
	snap, err := runner.Run(ctx, cfg, now)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.consecutiveErrors++
		count := s.consecutiveErrors
		last := s.last
		s.mu.Unlock()

		s.log.Warn().Err(err).Int("attempt", count).Msg("Refresh failed")
		if last != nil {
			// keep showing old data, the badge turns grey once it is stale
			s.writeBadge(cfg, last, now)
		} else {
			s.writeErrorBadge(cfg)
		}
		return fmt.Errorf("refresh: %w", err)
	}

	s.mu.Lock()
	s.last = snap
	s.lastErr = nil
	s.consecutiveErrors = 0
	s.lastSuccessTime = now
	s.mu.Unlock()

	stale := snap.StaleMinutes(now)
	s.log.Info().
		Str("cycle", snap.CycleID).
		Int("readings", len(snap.Readings)).
		Int("labels", len(snap.Labels)).
		Msg("Snapshot updated")
	s.log.Debug().Msg(tray.Tooltip(snap, stale, true))

	s.writeBadge(cfg, snap, now)

	if alerter != nil {
		if err := alerter.CheckAndNotify(snap, now); err != nil {
			s.log.Warn().Err(err).Msg("Notification error")
		}
	}
	return nil
}

// Latest returns the newest snapshot
func (s *Service) Latest() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// LastError returns the error of the most recent cycle
func (s *Service) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// LastSuccess returns when the last successful cycle ran, zero if none has
func (s *Service) LastSuccess() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSuccessTime
}

func (s *Service) writeBadge(cfg *config.Config, snap *models.Snapshot, now time.Time) {
	if s.icons == nil || cfg.StatusIconPath == "" {
		return
	}
	data, err := s.icons.Render(snap, snap.StaleMinutes(now), formatFor(cfg.StatusIconPath))
	s.storeBadge(cfg.StatusIconPath, data, err)
}

func (s *Service) writeErrorBadge(cfg *config.Config) {
	if s.icons == nil || cfg.StatusIconPath == "" {
		return
	}
	data, err := s.icons.RenderError(formatFor(cfg.StatusIconPath))
	s.storeBadge(cfg.StatusIconPath, data, err)
}

func (s *Service) storeBadge(path string, data []byte, err error) {
	if errors.Is(err, tray.ErrRenderBusy) {
		s.log.Debug().Msg("Badge render skipped, renderer busy")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Badge render failed")
		return
	}
	if err := tray.WriteFile(path, data); err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("Writing badge failed")
	}
}

// formatFor picks the badge encoding from the file extension
func formatFor(path string) tray.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ico":
		return tray.FormatICO
	case ".png":
		return tray.FormatPNG
	default:
		return tray.PlatformFormat()
	}
}
