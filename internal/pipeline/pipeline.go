// Package pipeline runs one fetch-and-reconcile pass against Nightscout.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/mrcode/nightscout-reconcile/internal/basal"
	"github.com/mrcode/nightscout-reconcile/internal/classify"
	"github.com/mrcode/nightscout-reconcile/internal/config"
	"github.com/mrcode/nightscout-reconcile/internal/fields"
	"github.com/mrcode/nightscout-reconcile/internal/labels"
	"github.com/mrcode/nightscout-reconcile/internal/metrics"
	"github.com/mrcode/nightscout-reconcile/internal/models"
	"github.com/mrcode/nightscout-reconcile/internal/sage"
	"github.com/mrcode/nightscout-reconcile/internal/timeutil"
)

// deviceStatusCount is how many recent device status records are considered
const deviceStatusCount = 8

// Source is the upstream the pipeline reads from. nightscout.Client implements it.
type Source interface {
	Entries(ctx context.Context, since time.Time) ([]*fields.Object, error)
	Treatments(ctx context.Context, since time.Time) ([]*fields.Object, error)
	Profile(ctx context.Context) (*fields.Object, error)
	DeviceStatus(ctx context.Context, count int) ([]*fields.Object, error)
	sage.SensorChangeFinder
}

// Pipeline turns upstream records into a Snapshot
type Pipeline struct {
	source     Source
	classifier *classify.Classifier
	estimator  *metrics.Estimator
	log        zerolog.Logger
}

// New creates a Pipeline reading from source
func New(source Source, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		source:     source,
		classifier: classify.New(log),
		estimator:  metrics.NewEstimator(log),
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// Run performs one full pass for the window ending at now. Entries and
// treatments are required; profile, device status and the sensor change
// lookup fall back to defaults when they fail.
func (p *Pipeline) Run(ctx context.Context, cfg *config.Config, now time.Time) (*models.Snapshot, error) {
	cycleID := uuid.NewString()
	log := p.log.With().Str("cycle_id", cycleID).Logger()
	loc := cfg.Location()

	start := now.Add(-cfg.Window())
	if cfg.DebugTime {
		log.Info().
			Time("window_start", start).
			Time("window_end", now).
			Str("tz", loc.String()).
			Msg("Refresh window")
	}

	entries, err := p.source.Entries(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("fetching entries: %w", err)
	}
	treatments, err := p.source.Treatments(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("fetching treatments: %w", err)
	}

	profileDoc, err := p.source.Profile(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Profile unavailable, using defaults")
		profileDoc = nil
	}
	var status *fields.Object
	if items, err := p.source.DeviceStatus(ctx, deviceStatusCount); err != nil {
		log.Warn().Err(err).Msg("Device status unavailable")
	} else if latest, ok := metrics.LatestSnapshot(items); ok {
		status = latest
	}

	readings := p.classifier.Readings(entries)
	events := p.classifier.Classify(treatments)

	profile, ok := basal.ProfileFromDocument(profileDoc)
	if !ok {
		log.Debug().Msg("No basal schedule in profile")
	}
	target, _ := basal.TargetRangeFromDocument(profileDoc)
	series := basal.BuildSeries(profile, events.TempBasals, start, now, loc)

	derived := p.estimator.Estimate(metrics.Input{
		Now:        now,
		Readings:   readings,
		Entries:    entries,
		Treatments: treatments,
		Events:     events,
		Status:     status,
		Decay: metrics.Decay{
			DIA:      cfg.DIA(),
			HalfLife: cfg.IOBHalfLife(),
		},
	})

	resolver := sage.NewResolver(p.source, log, bool(cfg.DebugAge))
	if minutes, src, ok := resolver.Resolve(ctx, status, now); ok {
		derived.SensorAgeMin = lo.ToPtr(minutes)
		derived.SensorAgeSource = src
	}
	if text, ok := basal.ActiveTempBasalText(treatments, now); ok {
		derived.ActiveTempBasal = lo.ToPtr(text)
	}

	axis := labels.AxisFor(readings, target, labels.AxisOverrides{Min: cfg.BGYMin, Max: cfg.BGYMax})
	placement := labels.Place(readings, events.ManualBoluses, events.Carbs, axis.Max)
	axis.Max = placement.Ceiling

	snap := &models.Snapshot{
		CycleID:     cycleID,
		GeneratedAt: now,
		Window:      models.Window{Start: start, End: now},
		Readings:    readings,
		Events:      events,
		Basal:       series,
		Target:      target,
		Metrics:     derived,
		Axis:        axis,
		Labels:      placement.Labels,
	}
	if last, ok := snap.LatestReading(); ok {
		snap.ReadingAge = timeutil.AgoText(last.Time, now)
		if cfg.DebugTime {
			log.Info().Time("last_reading", last.Time).Str("age", snap.ReadingAge).Msg("Latest reading")
		}
	}

	log.Debug().
		Int("entries", len(entries)).
		Int("readings", len(readings)).
		Int("treatments", len(treatments)).
		Int("labels", len(snap.Labels)).
		Int("overridden_minutes", series.OverriddenMinutes()).
		Msg("Refresh complete")

	return snap, nil
}
