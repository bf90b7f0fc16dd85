// Package classify turns raw Nightscout treatments into typed events.
package classify

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/mrcode/nightscout-reconcile/internal/fields"
	"github.com/mrcode/nightscout-reconcile/internal/models"
	"github.com/mrcode/nightscout-reconcile/internal/timeutil"
)

const smbMarker = "smb"

// Classifier sorts treatments into boluses, carbs and temp basals
type Classifier struct {
	log zerolog.Logger
}

// New creates a Classifier
func New(log zerolog.Logger) *Classifier {
	return &Classifier{
		log: log.With().Str("component", "classify").Logger(),
	}
}

// Classify classifies every record. Records without a usable timestamp are dropped.
func (c *Classifier) Classify(records []*fields.Object) models.Events {
	var out models.Events
	dropped := 0

	for _, rec := range records {
		events, ok := Record(rec)
		if !ok {
			dropped++
			continue
		}
		for _, ev := range events {
			out.Add(ev)
		}
	}

	if dropped > 0 {
		c.log.Debug().Int("dropped", dropped).Int("total", len(records)).Msg("Treatments without timestamp skipped")
	}
	c.log.Debug().
		Int("boluses", len(out.ManualBoluses)).
		Int("smb", len(out.MicroBoluses)).
		Int("carbs", len(out.Carbs)).
		Int("temp_basals", len(out.TempBasals)).
		Msg("Treatments classified")

	return out
}

// Record classifies a single treatment. A temp basal yields only a TempBasal.
// Any other record may yield a CarbIntake, a bolus, both, or nothing.
// ok is false when the record has no usable timestamp.
func Record(rec *fields.Object) ([]models.TreatmentEvent, bool) {
	ts, ok := timeutil.TreatmentInstant(rec)
	if !ok {
		return nil, false
	}

	if IsTempBasal(rec) {
		return []models.TreatmentEvent{tempBasal(rec, ts)}, true
	}

	var events []models.TreatmentEvent
	if grams, ok := rec.FirstPositive(fields.Carbs); ok {
		events = append(events, models.CarbIntake{Time: ts, Grams: grams})
	}

	if units, ok := Dose(rec); ok && units > 0 {
		if IsMicroBolus(rec) {
			events = append(events, models.MicroBolus{Time: ts, Units: units})
		} else {
			events = append(events, models.ManualBolus{Time: ts, Units: units})
		}
	}
	return events, true
}

// IsTempBasal reports whether the record's eventType is "temp basal"
func IsTempBasal(rec *fields.Object) bool {
	return eventType(rec) == strings.ToLower(models.TreatmentEventTypes.TempBasal)
}

// Dose returns the first dose field holding a number or numeric string.
// The value is not checked for sign.
func Dose(rec *fields.Object) (float64, bool) {
	units, _, ok := rec.FirstNumber(fields.Dose, fields.Number)
	return units, ok
}

// DoseWithParts is Dose, falling back to the split bolus object some pumps upload
func DoseWithParts(rec *fields.Object) (float64, bool) {
	if units, ok := Dose(rec); ok {
		return units, true
	}
	bolus, ok := rec.Object("bolus")
	if !ok {
		return 0, false
	}
	units, _, ok := bolus.FirstNumber(fields.BolusPart, fields.StrictNumber)
	return units, ok
}

// IsMicroBolus reports whether eventType, type or any tag mentions "smb"
func IsMicroBolus(rec *fields.Object) bool {
	if strings.Contains(eventType(rec), smbMarker) {
		return true
	}
	if t, ok := rec.String("type"); ok && strings.Contains(strings.ToLower(t), smbMarker) {
		return true
	}
	return lo.SomeBy(tags(rec), func(tag string) bool {
		return strings.Contains(tag, smbMarker)
	})
}

func tempBasal(rec *fields.Object, ts time.Time) models.TempBasal {
	tb := models.TempBasal{Start: ts}
	if v, ok := rec.Get("duration"); ok {
		if d, ok := fields.Number(v); ok {
			tb.DurationMinutes = int(d)
		}
	}
	if v, ok := rec.Get("absolute"); ok {
		if f, ok := fields.Number(v); ok {
			tb.Absolute = lo.ToPtr(f)
		}
	}
	if v, ok := rec.Get("percent"); ok {
		if f, ok := fields.Number(v); ok {
			tb.Percent = lo.ToPtr(f)
		}
	}
	return tb
}

func eventType(rec *fields.Object) string {
	et, _ := rec.String("eventType")
	return strings.ToLower(strings.TrimSpace(et))
}

func tags(rec *fields.Object) []string {
	v, ok := rec.Get("tags")
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []any:
		return lo.Map(t, func(item any, _ int) string {
			return strings.ToLower(fmt.Sprint(item))
		})
	case string:
		return []string{strings.ToLower(t)}
	default:
		return nil
	}
}
