package classify

import (
	"sort"

	"github.com/mrcode/nightscout-reconcile/internal/fields"
	"github.com/mrcode/nightscout-reconcile/internal/models"
	"github.com/mrcode/nightscout-reconcile/internal/timeutil"
)

// Readings converts glucose entries into readings sorted by time.
// Entries without a positive value or a usable timestamp are skipped.
func (c *Classifier) Readings(records []*fields.Object) []models.GlucoseReading {
	out := make([]models.GlucoseReading, 0, len(records))
	for _, rec := range records {
		r, ok := Reading(rec)
		if !ok {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})

	if skipped := len(records) - len(out); skipped > 0 {
		c.log.Debug().Int("skipped", skipped).Int("total", len(records)).Msg("Entries without value or timestamp skipped")
	}
	return out
}

// Reading converts a single glucose entry
func Reading(rec *fields.Object) (models.GlucoseReading, bool) {
	mgdl, ok := rec.FirstPositive(fields.EntryValue)
	if !ok {
		return models.GlucoseReading{}, false
	}
	ts, ok := timeutil.EntryInstant(rec)
	if !ok {
		return models.GlucoseReading{}, false
	}
	direction, _ := rec.String("direction")
	return models.NewGlucoseReading(ts, mgdl, direction), true
}
