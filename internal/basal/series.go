// Package basal reconciles the programmed basal profile with temp basal overrides.
package basal

import (
	"time"

	"github.com/samber/lo"

	"github.com/mrcode/nightscout-reconcile/internal/models"
	"github.com/mrcode/nightscout-reconcile/internal/timeutil"
)

// PlanSeries builds a one-minute grid from start, truncated to the minute, to
// end (both inclusive) with actual equal to plan. The profile is looked up by
// local time of day in loc.
func PlanSeries(profile models.BasalProfile, start, end time.Time, loc *time.Location) models.BasalSeries {
	start = start.Truncate(time.Minute)
	if end.Before(start) {
		return models.BasalSeries{}
	}

	out := make(models.BasalSeries, 0, int(end.Sub(start)/time.Minute)+1)
	for t := start; !t.After(end); t = t.Add(time.Minute) {
		plan, _ := profile.RateAt(timeutil.SecondsOfDay(t, loc))
		out = append(out, models.BasalPoint{
			Time:   t.In(loc),
			Plan:   plan,
			Actual: plan,
		})
	}
	return out
}

// ApplyOverlay returns a copy of series with tb applied to every minute in
// [tb.Start, tb.End). An overlay without rate or percent changes nothing.
func ApplyOverlay(series models.BasalSeries, tb models.TempBasal) models.BasalSeries {
	out := series.Clone()
	for i := range out {
		if !tb.Covers(out[i].Time) {
			continue
		}
		rate, ok := tb.Rate(out[i].Plan)
		if !ok {
			continue
		}
		out[i].Actual = rate
		out[i].Overridden = models.IsOverride(out[i].Plan, rate)
	}
	return out
}

// BuildSeries folds the overlays over the plan series in order.
// Where overlays overlap, the one applied last wins.
func BuildSeries(profile models.BasalProfile, overlays []models.TempBasal, start, end time.Time, loc *time.Location) models.BasalSeries {
	return lo.Reduce(overlays, func(acc models.BasalSeries, tb models.TempBasal, _ int) models.BasalSeries {
		return ApplyOverlay(acc, tb)
	}, PlanSeries(profile, start, end, loc))
}
