package models

import "time"

// MetricSource records where a derived value came from
type MetricSource string

// Metric sources
const (
	SourceNone         MetricSource = ""
	SourceDeviceStatus MetricSource = "devicestatus"
	SourceFallback     MetricSource = "fallback"
	SourceTreatment    MetricSource = "treatment"
)

// DerivedMetrics holds the values derived for one refresh.
// A nil field means the value is unknown, never zero.
type DerivedMetrics struct {
	CurrentBG       *float64     `json:"currentBg,omitempty"` // mmol/L
	TrendArrow      *string      `json:"trendArrow,omitempty"`
	Delta           *float64     `json:"delta,omitempty"` // mmol/L since the previous reading
	BolusIOB        *float64     `json:"bolusIob,omitempty"`
	BasalIOB        *float64     `json:"basalIob,omitempty"`
	TotalIOB        *float64     `json:"totalIob,omitempty"`
	IOBSource       MetricSource `json:"iobSource,omitempty"`
	COB             *float64     `json:"cob,omitempty"` // grams
	COBSource       MetricSource `json:"cobSource,omitempty"`
	SensorAgeMin    *int         `json:"sensorAgeMinutes,omitempty"`
	SensorAgeSource MetricSource `json:"sensorAgeSource,omitempty"`
	PumpBattery     *string      `json:"pumpBattery,omitempty"`
	Reservoir       *string      `json:"reservoir,omitempty"`
	UploaderBattery *string      `json:"uploaderBattery,omitempty"`
	ActiveTempBasal *string      `json:"activeTempBasal,omitempty"`
}

// Axis is the vertical range of the glucose chart in mmol/L
type Axis struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Label is a chart annotation for a bolus or carb entry
type Label struct {
	Time   time.Time `json:"time"`
	Y      float64   `json:"y"`      // Glucose value the label points at
	Offset float64   `json:"offset"` // Points above (positive) or below (negative) Y
	Text   string    `json:"text"`
	Kind   EventKind `json:"kind"`
}

// Above reports whether the label sits above its point
func (l Label) Above() bool {
	return l.Offset > 0
}

// Window is the time span covered by one refresh
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Snapshot is the result of one refresh cycle
type Snapshot struct {
	CycleID     string           `json:"cycleId"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Window      Window           `json:"window"`
	Readings    []GlucoseReading `json:"readings"`
	Events      Events           `json:"events"`
	Basal       BasalSeries      `json:"basal"`
	Target      TargetRange      `json:"target"`
	Metrics     DerivedMetrics   `json:"metrics"`
	Axis        Axis             `json:"axis"`
	Labels      []Label          `json:"labels"`
	ReadingAge  string           `json:"readingAge,omitempty"` // e.g. "vor 3 min"
}

// LatestReading returns the most recent reading
func (s *Snapshot) LatestReading() (GlucoseReading, bool) {
	if s == nil || len(s.Readings) == 0 {
		return GlucoseReading{}, false
	}
	return s.Readings[len(s.Readings)-1], true
}

// StaleMinutes returns the minutes between the latest reading and now, or -1 without readings
func (s *Snapshot) StaleMinutes(now time.Time) int {
	r, ok := s.LatestReading()
	if !ok {
		return -1
	}
	return int(now.Sub(r.Time).Minutes())
}
