package metrics

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/mrcode/nightscout-reconcile/internal/fields"
	"github.com/mrcode/nightscout-reconcile/internal/models"
	"github.com/mrcode/nightscout-reconcile/internal/timeutil"
)

const (
	trendWindow      = 15 * time.Minute
	trendTailReads   = 5
	trendMinReadings = 3

	// Slope thresholds in mmol/L per 15 minutes
	steepSlope = 0.5
	mildSlope  = 0.2
	slopeTol   = 1e-9
)

// TrendArrow returns the arrow for the latest reading. The uploader's
// direction wins; an unknown direction falls back to the regression slope.
func TrendArrow(readings []models.GlucoseReading) (string, bool) {
	if len(readings) == 0 {
		return "", false
	}
	if arrow, ok := readings[len(readings)-1].TrendArrow(); ok {
		return arrow, true
	}
	return SlopeArrow(readings)
}

// SlopeArrow fits a line through the last 15 minutes of readings (the last
// five when that window holds fewer than two) and maps the slope to an arrow.
func SlopeArrow(readings []models.GlucoseReading) (string, bool) {
	if len(readings) < trendMinReadings {
		return "", false
	}

	last := readings[len(readings)-1].Time
	var window []models.GlucoseReading
	for _, r := range readings {
		if !r.Time.Before(last.Add(-trendWindow)) {
			window = append(window, r)
		}
	}
	if len(window) < 2 {
		window = readings[max(0, len(readings)-trendTailReads):]
	}

	xs := make([]float64, len(window))
	ys := make([]float64, len(window))
	for i, r := range window {
		xs[i] = r.Time.Sub(window[0].Time).Seconds()
		ys[i] = r.Mmol
	}
	_, slopePerSecond := stat.LinearRegression(xs, ys, nil, false)

	return arrowForSlope(slopePerSecond * trendWindow.Seconds()), true
}

func arrowForSlope(s float64) string {
	switch {
	case s >= steepSlope-slopeTol:
		return models.ArrowSingleUp
	case s >= mildSlope-slopeTol:
		return models.ArrowFortyFiveUp
	case s <= -steepSlope+slopeTol:
		return models.ArrowSingleDown
	case s <= -mildSlope+slopeTol:
		return models.ArrowFortyFiveDown
	default:
		return models.ArrowFlat
	}
}

// Delta returns the change since the previous reading in mmol/L. The
// uploader's delta field on the newest entry wins over the difference of
// the last two readings.
func Delta(entries []*fields.Object, readings []models.GlucoseReading) (float64, bool) {
	if newest, ok := newestEntry(entries); ok {
		if d, _, ok := newest.FirstNumber(fields.EntryDelta, fields.Number); ok {
			return d / models.MgdlPerMmol, true
		}
	}
	if len(readings) < 2 {
		return 0, false
	}
	cur, prev := readings[len(readings)-1], readings[len(readings)-2]
	return (cur.MgDL - prev.MgDL) / models.MgdlPerMmol, true
}

func newestEntry(entries []*fields.Object) (*fields.Object, bool) {
	var newest *fields.Object
	var newestAt time.Time
	for _, e := range entries {
		at, ok := timeutil.EntryInstant(e)
		if !ok {
			continue
		}
		if newest == nil || at.After(newestAt) {
			newest, newestAt = e, at
		}
	}
	return newest, newest != nil
}
