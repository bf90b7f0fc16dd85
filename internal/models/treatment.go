// Package models contains data structures used throughout the application
package models

import "time"

// EventKind identifies the variant of a TreatmentEvent
type EventKind string

// Treatment event kinds
const (
	KindManualBolus EventKind = "bolus"
	KindMicroBolus  EventKind = "smb"
	KindCarbIntake  EventKind = "carbs"
	KindTempBasal   EventKind = "temp_basal"
)

// TreatmentEvent is a classified Nightscout treatment.
// The set of implementations is closed: ManualBolus, MicroBolus, CarbIntake and TempBasal.
type TreatmentEvent interface {
	EventTime() time.Time
	Kind() EventKind
	treatmentEvent()
}

// ManualBolus represents a manually entered insulin dose
type ManualBolus struct {
	Time  time.Time `json:"time"`
	Units float64   `json:"units"`
}

// MicroBolus represents a small automated correction dose (SMB)
type MicroBolus struct {
	Time  time.Time `json:"time"`
	Units float64   `json:"units"`
}

// CarbIntake represents carbohydrates entered with a treatment
type CarbIntake struct {
	Time  time.Time `json:"time"`
	Grams float64   `json:"grams"`
}

// TempBasal represents a time-bounded override of the programmed basal rate.
// When both Absolute and Percent are set, Absolute wins.
type TempBasal struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"durationMinutes"`
	Absolute        *float64  `json:"absolute,omitempty"` // U/h
	Percent         *float64  `json:"percent,omitempty"`  // Percent of the planned rate
}

func (e ManualBolus) EventTime() time.Time { return e.Time }
func (e MicroBolus) EventTime() time.Time  { return e.Time }
func (e CarbIntake) EventTime() time.Time  { return e.Time }
func (e TempBasal) EventTime() time.Time   { return e.Start }

func (ManualBolus) Kind() EventKind { return KindManualBolus }
func (MicroBolus) Kind() EventKind  { return KindMicroBolus }
func (CarbIntake) Kind() EventKind  { return KindCarbIntake }
func (TempBasal) Kind() EventKind   { return KindTempBasal }

func (ManualBolus) treatmentEvent() {}
func (MicroBolus) treatmentEvent()  {}
func (CarbIntake) treatmentEvent()  {}
func (TempBasal) treatmentEvent()   {}

// End returns the first instant after the temp basal
func (e TempBasal) End() time.Time {
	return e.Start.Add(time.Duration(e.DurationMinutes) * time.Minute)
}

// Covers reports whether t lies in [Start, End)
func (e TempBasal) Covers(t time.Time) bool {
	return !t.Before(e.Start) && t.Before(e.End())
}

// Rate returns the delivered rate for a planned rate.
// ok is false when the temp basal carries neither an absolute rate nor a percentage.
func (e TempBasal) Rate(plan float64) (float64, bool) {
	switch {
	case e.Absolute != nil:
		return *e.Absolute, true
	case e.Percent != nil:
		return plan * *e.Percent / 100, true
	default:
		return plan, false
	}
}

// TreatmentEventTypes contains common Nightscout event types
var TreatmentEventTypes = struct {
	SensorStart    string
	SensorChange   string
	TempBasal      string
	TemporaryBasal string
	TempBasalStart string
	TempBasalEnd   string
}{
	SensorStart:    "Sensor Start",
	SensorChange:   "Sensor Change",
	TempBasal:      "Temp Basal",
	TemporaryBasal: "Temporary Basal",
	TempBasalStart: "Temp Basal Start",
	TempBasalEnd:   "Temp Basal End",
}

// Events groups classified treatments by variant, each in source order
type Events struct {
	ManualBoluses []ManualBolus `json:"manualBoluses"`
	MicroBoluses  []MicroBolus  `json:"microBoluses"`
	Carbs         []CarbIntake  `json:"carbs"`
	TempBasals    []TempBasal   `json:"tempBasals"`
}

// All returns every event in the order the variants were appended
func (e Events) All() []TreatmentEvent {
	out := make([]TreatmentEvent, 0, len(e.ManualBoluses)+len(e.MicroBoluses)+len(e.Carbs)+len(e.TempBasals))
	for _, ev := range e.ManualBoluses {
		out = append(out, ev)
	}
	for _, ev := range e.MicroBoluses {
		out = append(out, ev)
	}
	for _, ev := range e.Carbs {
		out = append(out, ev)
	}
	for _, ev := range e.TempBasals {
		out = append(out, ev)
	}
	return out
}

// Add appends an event to the matching slice
func (e *Events) Add(ev TreatmentEvent) {
	switch v := ev.(type) {
	case ManualBolus:
		e.ManualBoluses = append(e.ManualBoluses, v)
	case MicroBolus:
		e.MicroBoluses = append(e.MicroBoluses, v)
	case CarbIntake:
		e.Carbs = append(e.Carbs, v)
	case TempBasal:
		e.TempBasals = append(e.TempBasals, v)
	}
}
