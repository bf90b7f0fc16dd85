package models

import (
	"math"
	"sort"
	"time"
)

// SecondsPerDay is the length of a basal profile day
const SecondsPerDay = 86400

// overrideEpsilon is the smallest rate difference that counts as an override
const overrideEpsilon = 1e-6

// BasalSegment is one entry of a daily basal schedule
type BasalSegment struct {
	Seconds int     `json:"timeAsSeconds"` // Offset from local midnight
	Rate    float64 `json:"value"`         // U/h
}

// BasalProfile is a daily basal schedule ordered by start time
type BasalProfile struct {
	Segments []BasalSegment `json:"segments"`
}

// NewBasalProfile sorts the segments. A later segment with the same start
// replaces an earlier one.
func NewBasalProfile(segments []BasalSegment) BasalProfile {
	byStart := make(map[int]float64, len(segments))
	for _, s := range segments {
		byStart[s.Seconds] = s.Rate
	}
	out := make([]BasalSegment, 0, len(byStart))
	for sec, rate := range byStart {
		out = append(out, BasalSegment{Seconds: sec, Rate: rate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seconds < out[j].Seconds })
	return BasalProfile{Segments: out}
}

// IsEmpty returns true if the profile has no segments
func (p BasalProfile) IsEmpty() bool {
	return len(p.Segments) == 0
}

// RateAt returns the rate of the latest segment starting at or before
// secondsOfDay. Queries before the first segment use the last segment.
// ok is false for an empty profile.
func (p BasalProfile) RateAt(secondsOfDay int) (float64, bool) {
	if len(p.Segments) == 0 {
		return 0, false
	}
	i := sort.Search(len(p.Segments), func(i int) bool {
		return p.Segments[i].Seconds > secondsOfDay
	})
	if i == 0 {
		return p.Segments[len(p.Segments)-1].Rate, true
	}
	return p.Segments[i-1].Rate, true
}

// BasalPoint is one minute of planned versus delivered basal
type BasalPoint struct {
	Time       time.Time `json:"time"`
	Plan       float64   `json:"plan"`
	Actual     float64   `json:"actual"`
	Overridden bool      `json:"overridden"`
}

// IsOverride reports whether actual differs from plan by more than the tolerance
func IsOverride(plan, actual float64) bool {
	return math.Abs(actual-plan) > overrideEpsilon
}

// BasalSeries is a per-minute basal series
type BasalSeries []BasalPoint

// Clone returns an independent copy of the series
func (s BasalSeries) Clone() BasalSeries {
	out := make(BasalSeries, len(s))
	copy(out, s)
	return out
}

// OverriddenMinutes counts the minutes where a temp basal changed the rate
func (s BasalSeries) OverriddenMinutes() int {
	n := 0
	for _, p := range s {
		if p.Overridden {
			n++
		}
	}
	return n
}

// TargetRange is the glucose target band in mmol/L
type TargetRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Default target range bounds in mmol/L
const (
	DefaultTargetLow  = 3.9
	DefaultTargetHigh = 10.0
)

// DefaultTargetRange returns the range used when the profile has no usable bounds
func DefaultTargetRange() TargetRange {
	return TargetRange{Low: DefaultTargetLow, High: DefaultTargetHigh}
}

// Range status values
const (
	RangeLow     = "low"
	RangeInRange = "in_range"
	RangeHigh    = "high"
)

// Classify returns the range status for a value in mmol/L
func (r TargetRange) Classify(mmol float64) string {
	switch {
	case mmol < r.Low:
		return RangeLow
	case mmol > r.High:
		return RangeHigh
	default:
		return RangeInRange
	}
}
