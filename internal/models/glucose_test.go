package models

import (
	"testing"
	"time"
)

func TestGlucoseReading_TrendArrow(t *testing.T) {
	tests := []struct {
		name      string
		direction string
		expected  string
		ok        bool
	}{
		{"DoubleUp direction", "DoubleUp", "↑↑", true},
		{"SingleUp direction", "SingleUp", "↑", true},
		{"FortyFiveUp direction", "FortyFiveUp", "↗", true},
		{"Flat direction", "Flat", "→", true},
		{"FortyFiveDown direction", "FortyFiveDown", "↘", true},
		{"SingleDown direction", "SingleDown", "↓", true},
		{"DoubleDown direction", "DoubleDown", "↓↓", true},
		{"Lowercase direction", "singleup", "↑", true},
		{"NONE maps to empty arrow", "NONE", "", true},
		{"Empty direction", "", "", false},
		{"NOT COMPUTABLE", "NOT COMPUTABLE", "", false},
		{"Unknown direction", "Sideways", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading := GlucoseReading{Direction: tt.direction}
			result, ok := reading.TrendArrow()
			if ok != tt.ok {
				t.Fatalf("TrendArrow() ok = %v, want %v", ok, tt.ok)
			}
			if result != tt.expected {
				t.Errorf("TrendArrow() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestMgdlToMmol(t *testing.T) {
	tests := []struct {
		name     string
		mgdl     float64
		expected float64
	}{
		{"100 mg/dL", 100, 5.6},
		{"180 mg/dL", 180, 10.0},
		{"70 mg/dL", 70, 3.9},
		{"39 mg/dL", 39, 2.2},
		{"400 mg/dL", 400, 22.2},
		{"zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MgdlToMmol(tt.mgdl)
			if result != tt.expected {
				t.Errorf("MgdlToMmol(%v) = %v, want %v", tt.mgdl, result, tt.expected)
			}
		})
	}
}

func TestNewGlucoseReading(t *testing.T) {
	ts := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	reading := NewGlucoseReading(ts, 120, "Flat")

	if reading.Mmol != 6.7 {
		t.Errorf("Mmol = %v, want 6.7", reading.Mmol)
	}
	if !reading.Time.Equal(ts) {
		t.Errorf("Time = %v, want %v", reading.Time, ts)
	}
}

func TestBasalProfile_RateAt(t *testing.T) {
	profile := NewBasalProfile([]BasalSegment{
		{Seconds: 21600, Rate: 1.2},
		{Seconds: 3600, Rate: 0.8},
		{Seconds: 79200, Rate: 0.5},
	})

	tests := []struct {
		name     string
		seconds  int
		expected float64
	}{
		{"before first segment wraps to last", 0, 0.5},
		{"exact segment start", 3600, 0.8},
		{"inside second segment", 30000, 1.2},
		{"last segment", 86399, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, ok := profile.RateAt(tt.seconds)
			if !ok {
				t.Fatal("RateAt() ok = false")
			}
			if rate != tt.expected {
				t.Errorf("RateAt(%d) = %v, want %v", tt.seconds, rate, tt.expected)
			}
		})
	}
}

func TestBasalProfile_Empty(t *testing.T) {
	var profile BasalProfile
	if _, ok := profile.RateAt(100); ok {
		t.Error("RateAt() on empty profile should not be ok")
	}
}

func TestNewBasalProfile_DuplicateStartLastWins(t *testing.T) {
	profile := NewBasalProfile([]BasalSegment{
		{Seconds: 0, Rate: 1.0},
		{Seconds: 0, Rate: 0.7},
	})
	if len(profile.Segments) != 1 || profile.Segments[0].Rate != 0.7 {
		t.Errorf("Segments = %+v, want single 0.7 segment", profile.Segments)
	}
}

func TestTempBasal_Rate(t *testing.T) {
	abs := 0.2
	pct := 150.0

	tests := []struct {
		name     string
		tb       TempBasal
		expected float64
		ok       bool
	}{
		{"absolute", TempBasal{Absolute: &abs}, 0.2, true},
		{"percent", TempBasal{Percent: &pct}, 1.5, true},
		{"absolute wins", TempBasal{Absolute: &abs, Percent: &pct}, 0.2, true},
		{"neither", TempBasal{}, 1.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, ok := tt.tb.Rate(1.0)
			if ok != tt.ok || rate != tt.expected {
				t.Errorf("Rate(1.0) = (%v, %v), want (%v, %v)", rate, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestTempBasal_Covers(t *testing.T) {
	start := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	tb := TempBasal{Start: start, DurationMinutes: 30}

	if !tb.Covers(start) {
		t.Error("start should be covered")
	}
	if !tb.Covers(start.Add(29 * time.Minute)) {
		t.Error("last minute should be covered")
	}
	if tb.Covers(start.Add(30 * time.Minute)) {
		t.Error("end should be exclusive")
	}
	if (TempBasal{Start: start}).Covers(start) {
		t.Error("zero duration covers nothing")
	}
}

func TestTargetRange_Classify(t *testing.T) {
	r := DefaultTargetRange()

	if got := r.Classify(3.8); got != RangeLow {
		t.Errorf("Classify(3.8) = %s, want %s", got, RangeLow)
	}
	if got := r.Classify(10.0); got != RangeInRange {
		t.Errorf("Classify(10.0) = %s, want %s", got, RangeInRange)
	}
	if got := r.Classify(10.1); got != RangeHigh {
		t.Errorf("Classify(10.1) = %s, want %s", got, RangeHigh)
	}
}

func TestEvents_AddAndAll(t *testing.T) {
	var ev Events
	ev.Add(CarbIntake{Grams: 20})
	ev.Add(ManualBolus{Units: 1.5})
	ev.Add(MicroBolus{Units: 0.3})

	if len(ev.Carbs) != 1 || len(ev.ManualBoluses) != 1 || len(ev.MicroBoluses) != 1 {
		t.Fatalf("unexpected grouping: %+v", ev)
	}

	all := ev.All()
	if len(all) != 3 {
		t.Fatalf("All() returned %d events, want 3", len(all))
	}
	if all[0].Kind() != KindManualBolus {
		t.Errorf("All()[0].Kind() = %s, want %s", all[0].Kind(), KindManualBolus)
	}
}
