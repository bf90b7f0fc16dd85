// Package sage resolves how long the current CGM sensor has been in use.
package sage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrcode/nightscout-reconcile/internal/fields"
	"github.com/mrcode/nightscout-reconcile/internal/models"
	"github.com/mrcode/nightscout-reconcile/internal/timeutil"
)

// searchDepth bounds the walk through a device status
const searchDepth = 6

// SensorChangeFinder looks up the newest sensor change treatment.
// It returns nil without error when there is none.
type SensorChangeFinder interface {
	LatestSensorChange(ctx context.Context) (*fields.Object, error)
}

// Resolver finds the sensor age, first in the device status, then from the
// last sensor change treatment.
type Resolver struct {
	finder SensorChangeFinder
	log    zerolog.Logger
	debug  bool
}

// NewResolver creates a Resolver. finder may be nil to skip the treatment
// lookup. debug logs every search step at info level.
func NewResolver(finder SensorChangeFinder, log zerolog.Logger, debug bool) *Resolver {
	return &Resolver{
		finder: finder,
		log:    log.With().Str("component", "sage").Logger(),
		debug:  debug,
	}
}

// FromSnapshot searches a device status for a sage or sensorage value in
// minutes. The first match in document order wins.
func FromSnapshot(snap *fields.Object) (int, string, bool) {
	if snap == nil {
		return 0, "", false
	}
	minutes, key, ok := fields.Search(snap, searchDepth, fields.KeyIn(fields.SensorAge), fields.Number)
	if !ok {
		return 0, "", false
	}
	return int(minutes), key, true
}

// Resolve returns the sensor age in minutes and where it came from.
// Lookup failures leave the age unknown.
func (r *Resolver) Resolve(ctx context.Context, snap *fields.Object, now time.Time) (int, models.MetricSource, bool) {
	if minutes, key, ok := FromSnapshot(snap); ok {
		r.debugf("sensor age %d min via key %q", minutes, key)
		return minutes, models.SourceDeviceStatus, true
	}
	r.debugf("no sensor age field in latest device status")

	if r.finder == nil {
		return 0, models.SourceNone, false
	}

	rec, err := r.finder.LatestSensorChange(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("Sensor change lookup failed")
		return 0, models.SourceNone, false
	}
	if rec == nil {
		r.debugf("no sensor change treatment found")
		return 0, models.SourceNone, false
	}
	changed, ok := timeutil.TreatmentInstant(rec)
	if !ok {
		r.debugf("sensor change treatment without timestamp")
		return 0, models.SourceNone, false
	}

	minutes := int(math.Floor(now.Sub(changed).Minutes()))
	r.debugf("sensor age %d min from sensor change at %s", minutes, changed.Format(time.RFC3339))
	return minutes, models.SourceTreatment, true
}

func (r *Resolver) debugf(format string, args ...any) {
	if r.debug {
		r.log.Info().Msgf(format, args...)
		return
	}
	r.log.Debug().Msgf(format, args...)
}

// FormatAge renders a sensor age as "2d 3h", or "5h" under a day.
// Negative ages have no text.
func FormatAge(minutes int) (string, bool) {
	if minutes < 0 {
		return "", false
	}
	days := minutes / 1440
	hours := (minutes % 1440) / 60
	if days >= 1 {
		return fmt.Sprintf("%dd %dh", days, hours), true
	}
	return fmt.Sprintf("%dh", hours), true
}
