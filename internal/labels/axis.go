package labels

import (
	"github.com/samber/lo"

	"github.com/mrcode/nightscout-reconcile/internal/models"
)

// Axis padding in mmol/L
const (
	padBelowData   = 0.4
	padAboveData   = 0.6
	padAroundRange = 0.3
)

// AxisOverrides pins either end of the chart axis. Nil keeps the computed value.
type AxisOverrides struct {
	Min *float64
	Max *float64
}

// AxisFor computes the chart's vertical range: the readings padded, widened
// to show the target range, then the overrides. The minimum never drops below 0.
func AxisFor(readings []models.GlucoseReading, target models.TargetRange, overrides AxisOverrides) models.Axis {
	axis := models.Axis{
		Min: target.Low - padAroundRange,
		Max: target.High + padAroundRange,
	}

	if len(readings) > 0 {
		values := lo.Map(readings, func(r models.GlucoseReading, _ int) float64 { return r.Mmol })
		axis.Min = min(lo.Min(values)-padBelowData, axis.Min)
		axis.Max = max(lo.Max(values)+padAboveData, axis.Max)
	}

	if overrides.Min != nil {
		axis.Min = *overrides.Min
	}
	if overrides.Max != nil {
		axis.Max = *overrides.Max
	}
	axis.Min = max(axis.Min, 0)
	return axis
}
