// Package timeutil normalizes the timestamp shapes found in Nightscout records.
package timeutil

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mrcode/nightscout-reconcile/internal/fields"
)

// Layouts tried in order. Layouts without a zone parse as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse parses an ISO-8601 timestamp into a UTC instant.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FromEpochMillis converts epoch milliseconds to a UTC instant.
func FromEpochMillis(ms float64) time.Time {
	sec, frac := math.Modf(ms / 1000)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// Instant reads a record's timestamp. String keys are tried first, then epoch
// milliseconds. ok is false when neither yields a usable instant.
func Instant(rec *fields.Object, text, epoch fields.KeyTable) (time.Time, bool) {
	for _, k := range text {
		s, ok := rec.String(k)
		if !ok || s == "" {
			continue
		}
		if t, ok := Parse(s); ok {
			return t, true
		}
	}
	for _, k := range epoch {
		v, ok := rec.Get(k)
		if !ok {
			continue
		}
		if ms, ok := fields.Number(v); ok && ms > 0 {
			return FromEpochMillis(ms), true
		}
	}
	return time.Time{}, false
}

// EntryInstant reads the timestamp of a glucose entry.
func EntryInstant(rec *fields.Object) (time.Time, bool) {
	return Instant(rec, fields.EntryTimeText, fields.EntryTimeEpoch)
}

// TreatmentInstant reads the timestamp of a treatment.
func TreatmentInstant(rec *fields.Object) (time.Time, bool) {
	return Instant(rec, fields.TreatmentTimeText, fields.TreatmentTimeEpoch)
}

// StatusInstant reads the timestamp of a device status. Records without one
// sort as the Unix epoch.
func StatusInstant(rec *fields.Object) time.Time {
	if t, ok := Instant(rec, fields.StatusTimeText, fields.StatusTimeEpoch); ok {
		return t
	}
	return time.Unix(0, 0).UTC()
}

// SecondsOfDay returns the seconds since local midnight of t in loc.
func SecondsOfDay(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*3600 + local.Minute()*60 + local.Second()
}

// AgoText renders how long ago t was, as shown next to the current reading.
func AgoText(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	mins := int(math.Max(0, now.Sub(t).Seconds())) / 60
	if hours := mins / 60; hours >= 1 {
		return fmt.Sprintf("vor %d h", hours)
	}
	return fmt.Sprintf("vor %d min", mins)
}
