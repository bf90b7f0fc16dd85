package statusapi

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/mrcode/nightscout-reconcile/internal/models"
	"github.com/mrcode/nightscout-reconcile/internal/sage"
	"github.com/mrcode/nightscout-reconcile/internal/tray"
)

const timeFormat = time.RFC3339

// Display holds the pre-formatted strings a widget shows. Unknown values are
// omitted rather than rendered as zero.
type Display struct {
	Value           string `json:"value,omitempty"` // mmol/L, one decimal
	Unit            string `json:"unit"`
	Trend           string `json:"trend,omitempty"`
	Delta           string `json:"delta,omitempty"`
	Range           string `json:"range,omitempty"` // low, in_range or high
	Age             string `json:"age,omitempty"`   // "vor 3 min"
	Stale           bool   `json:"stale"`
	IOB             string `json:"iob,omitempty"`
	BolusIOB        string `json:"bolusIob,omitempty"`
	BasalIOB        string `json:"basalIob,omitempty"`
	COB             string `json:"cob,omitempty"`
	SensorAge       string `json:"sensorAge,omitempty"`
	PumpBattery     string `json:"pumpBattery,omitempty"`
	Reservoir       string `json:"reservoir,omitempty"`
	UploaderBattery string `json:"uploaderBattery,omitempty"`
	TempBasal       string `json:"tempBasal,omitempty"`
	Tooltip         string `json:"tooltip"`
	GeneratedAt     string `json:"generatedAt"`
}

// DisplayFor formats a snapshot for display at now
func DisplayFor(snap *models.Snapshot, now time.Time) Display {
	m := snap.Metrics
	stale := snap.StaleMinutes(now)

	d := Display{
		Unit:            "mmol/L",
		Age:             snap.ReadingAge,
		Stale:           stale < 0 || stale > tray.StaleAfterMinutes,
		IOB:             formatOptional(m.TotalIOB, "%.2f U"),
		BolusIOB:        formatOptional(m.BolusIOB, "%.2f U"),
		BasalIOB:        formatOptional(m.BasalIOB, "%.2f U"),
		COB:             formatOptional(m.COB, "%.0f g"),
		PumpBattery:     lo.FromPtr(m.PumpBattery),
		Reservoir:       lo.FromPtr(m.Reservoir),
		UploaderBattery: lo.FromPtr(m.UploaderBattery),
		TempBasal:       lo.FromPtr(m.ActiveTempBasal),
		Trend:           lo.FromPtr(m.TrendArrow),
		Tooltip:         tray.Tooltip(snap, stale, false),
		GeneratedAt:     snap.GeneratedAt.Format(timeFormat),
	}

	if reading, ok := snap.LatestReading(); ok {
		d.Value = fmt.Sprintf("%.1f", reading.Mmol)
		d.Range = snap.Target.Classify(reading.Mmol)
	}
	if m.Delta != nil {
		d.Delta = fmt.Sprintf("%+.1f", *m.Delta)
	}
	if m.SensorAgeMin != nil {
		d.SensorAge, _ = sage.FormatAge(*m.SensorAgeMin)
	}
	return d
}

func formatOptional(v *float64, format string) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf(format, *v)
}
