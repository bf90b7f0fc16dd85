package metrics

import (
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/mrcode/nightscout-reconcile/internal/classify"
	"github.com/mrcode/nightscout-reconcile/internal/fields"
	"github.com/mrcode/nightscout-reconcile/internal/models"
	"github.com/mrcode/nightscout-reconcile/internal/timeutil"
)

// Decay defaults for the bolus IOB estimate
const (
	DefaultDIA      = 300 * time.Minute
	DefaultHalfLife = 60 * time.Minute
)

// Decay describes how fast bolus insulin is used up
type Decay struct {
	DIA      time.Duration // insulin older than this no longer counts
	HalfLife time.Duration
}

// DefaultDecay returns the 5 h / 60 min decay used when nothing is configured
func DefaultDecay() Decay {
	return Decay{DIA: DefaultDIA, HalfLife: DefaultHalfLife}
}

// Remaining returns the share of a dose left after age.
// Doses in the future or at least DIA old count as zero.
func (d Decay) Remaining(age time.Duration) float64 {
	if age < 0 || age >= d.DIA || d.HalfLife <= 0 {
		return 0
	}
	return math.Pow(0.5, age.Minutes()/d.HalfLife.Minutes())
}

// FallbackBolusIOB estimates bolus insulin on board from the raw treatments
// when the device status does not report it. Every positive dose counts,
// micro boluses included.
func FallbackBolusIOB(records []*fields.Object, now time.Time, decay Decay) float64 {
	return lo.SumBy(records, func(rec *fields.Object) float64 {
		units, ok := classify.DoseWithParts(rec)
		if !ok || units <= 0 {
			return 0
		}
		ts, ok := timeutil.TreatmentInstant(rec)
		if !ok {
			return 0
		}
		return units * decay.Remaining(now.Sub(ts))
	})
}

// FallbackCOB sums the carbs entered in the window without absorption
func FallbackCOB(carbs []models.CarbIntake) float64 {
	return lo.SumBy(carbs, func(c models.CarbIntake) float64 {
		return c.Grams
	})
}
