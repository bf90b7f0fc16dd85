package basal

import (
	"fmt"
	"strings"
	"time"

	"github.com/mrcode/nightscout-reconcile/internal/fields"
	"github.com/mrcode/nightscout-reconcile/internal/models"
	"github.com/mrcode/nightscout-reconcile/internal/timeutil"
)

var activeEventTypes = map[string]bool{
	strings.ToLower(models.TreatmentEventTypes.TempBasal):      true,
	strings.ToLower(models.TreatmentEventTypes.TemporaryBasal): true,
	strings.ToLower(models.TreatmentEventTypes.TempBasalStart): true,
	strings.ToLower(models.TreatmentEventTypes.TempBasalEnd):   true,
}

// Event types that count as running even without a duration
var openEndedEventTypes = map[string]bool{
	strings.ToLower(models.TreatmentEventTypes.TempBasal):      true,
	strings.ToLower(models.TreatmentEventTypes.TempBasalStart): true,
}

// ActiveTempBasalText describes the temp basal running at now, e.g.
// "Temp 0.60 U/h · 22 min" or "Temp +30% · 12 min". Records are checked in
// the order given and the first one with a rate or percentage wins. A running
// temp basal without either reads "Temp aktiv".
func ActiveTempBasalText(records []*fields.Object, now time.Time) (string, bool) {
	active := false

	for _, rec := range records {
		et, _ := rec.String("eventType")
		et = strings.ToLower(strings.TrimSpace(et))
		if !activeEventTypes[et] {
			continue
		}
		start, ok := timeutil.TreatmentInstant(rec)
		if !ok {
			continue
		}

		duration := 0
		if d, ok := rec.Number("duration"); ok {
			duration = int(d)
		}
		end := start.Add(time.Duration(duration) * time.Minute)

		running := !now.Before(start) && now.Before(end)
		if !running && !(duration == 0 && openEndedEventTypes[et]) {
			continue
		}

		remaining := 0
		if duration > 0 {
			remaining = int(max(0, end.Sub(now).Minutes()))
		}
		suffix := ""
		if remaining > 0 {
			suffix = fmt.Sprintf(" · %d min", remaining)
		}

		if abs, ok := rec.Number("absolute"); ok {
			return fmt.Sprintf("Temp %.2f U/h%s", abs, suffix), true
		}
		if pct, ok := rec.Number("percent"); ok {
			sign := ""
			if pct >= 0 {
				sign = "+"
			}
			return fmt.Sprintf("Temp %s%d%%%s", sign, int(pct), suffix), true
		}
		active = true
	}

	if active {
		return "Temp aktiv", true
	}
	return "", false
}
