package metrics

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/mrcode/nightscout-reconcile/internal/fields"
	"github.com/mrcode/nightscout-reconcile/internal/models"
)

// Input is everything one estimate is derived from
type Input struct {
	Now        time.Time
	Readings   []models.GlucoseReading // sorted by time
	Entries    []*fields.Object        // raw glucose entries
	Treatments []*fields.Object        // raw treatments in the window
	Events     models.Events
	Status     *fields.Object // latest device status, nil when none
	Decay      Decay
}

// Estimator derives the metrics shown for one refresh
type Estimator struct {
	log zerolog.Logger
}

// NewEstimator creates an Estimator
func NewEstimator(log zerolog.Logger) *Estimator {
	return &Estimator{
		log: log.With().Str("component", "metrics").Logger(),
	}
}

// Estimate prefers device status values and falls back to estimates from the
// treatments. Sensor age and the active temp basal are filled in elsewhere.
func (e *Estimator) Estimate(in Input) models.DerivedMetrics {
	var out models.DerivedMetrics

	if len(in.Readings) > 0 {
		out.CurrentBG = lo.ToPtr(in.Readings[len(in.Readings)-1].Mmol)
	}
	if arrow, ok := TrendArrow(in.Readings); ok {
		out.TrendArrow = lo.ToPtr(arrow)
	}
	if d, ok := Delta(in.Entries, in.Readings); ok {
		out.Delta = lo.ToPtr(d)
	}

	status := FromSnapshot(in.Status)
	out.PumpBattery = status.PumpBattery
	out.Reservoir = status.Reservoir
	out.UploaderBattery = status.UploaderBattery

	if status.BolusIOB != nil && status.BasalIOB != nil {
		out.BolusIOB = status.BolusIOB
		out.BasalIOB = status.BasalIOB
		out.TotalIOB = status.TotalIOB
		out.IOBSource = models.SourceDeviceStatus
	} else {
		bolus := FallbackBolusIOB(in.Treatments, in.Now, in.Decay)
		out.BolusIOB = lo.ToPtr(bolus)
		out.BasalIOB = lo.ToPtr(0.0)
		out.TotalIOB = status.TotalIOB
		if out.TotalIOB == nil {
			out.TotalIOB = lo.ToPtr(bolus)
		}
		out.IOBSource = models.SourceFallback
	}

	if status.COB != nil {
		out.COB = status.COB
		out.COBSource = models.SourceDeviceStatus
	} else {
		out.COB = lo.ToPtr(FallbackCOB(in.Events.Carbs))
		out.COBSource = models.SourceFallback
	}

	e.log.Debug().
		Str("iob_source", string(out.IOBSource)).
		Str("cob_source", string(out.COBSource)).
		Bool("has_status", in.Status != nil).
		Msg("Metrics estimated")

	return out
}
