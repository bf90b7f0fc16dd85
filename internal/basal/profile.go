package basal

import (
	"strconv"
	"strings"

	"github.com/mrcode/nightscout-reconcile/internal/fields"
	"github.com/mrcode/nightscout-reconcile/internal/models"
)

// defaultProfileStore returns the store entry named by defaultProfile
func defaultProfileStore(doc *fields.Object) (*fields.Object, bool) {
	if doc == nil {
		return nil, false
	}
	name, ok := doc.String("defaultProfile")
	if !ok {
		return nil, false
	}
	store, ok := doc.Object("store")
	if !ok {
		return nil, false
	}
	return store.Object(name)
}

// ProfileFromDocument reads the basal schedule of the default profile.
// Segments without a usable start or rate are skipped.
func ProfileFromDocument(doc *fields.Object) (models.BasalProfile, bool) {
	store, ok := defaultProfileStore(doc)
	if !ok {
		return models.BasalProfile{}, false
	}
	entries, ok := store.Array("basal")
	if !ok {
		return models.BasalProfile{}, false
	}

	segments := make([]models.BasalSegment, 0, len(entries))
	for _, item := range entries {
		entry, ok := item.(*fields.Object)
		if !ok {
			continue
		}
		rate, ok := numberAt(entry, "value")
		if !ok {
			continue
		}
		secs, ok := segmentStart(entry)
		if !ok {
			continue
		}
		segments = append(segments, models.BasalSegment{Seconds: secs, Rate: rate})
	}

	profile := models.NewBasalProfile(segments)
	return profile, !profile.IsEmpty()
}

// segmentStart reads timeAsSeconds, falling back to the "HH:MM" time field
func segmentStart(entry *fields.Object) (int, bool) {
	if secs, ok := numberAt(entry, "timeAsSeconds"); ok {
		return int(secs), true
	}
	s, ok := entry.String("time")
	if !ok {
		return 0, false
	}
	hh, mm, found := strings.Cut(s, ":")
	if !found {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*3600 + m*60, true
}

// TargetRangeFromDocument reads the first target bounds of the default
// profile, converting mg/dL profiles to mmol/L. ok is false, with the default
// range, when either bound is missing.
func TargetRangeFromDocument(doc *fields.Object) (models.TargetRange, bool) {
	store, ok := defaultProfileStore(doc)
	if !ok {
		return models.DefaultTargetRange(), false
	}

	low, lowOK := firstBound(store, fields.TargetLow)
	high, highOK := firstBound(store, fields.TargetHigh)

	if !lowOK || !highOK {
		if targets, ok := store.Array("target"); ok && len(targets) > 0 {
			if t0, ok := targets[0].(*fields.Object); ok {
				if !lowOK {
					low, lowOK = numberAt(t0, "low")
				}
				if !highOK {
					high, highOK = numberAt(t0, "high")
				}
			}
		}
	}
	if !lowOK || !highOK {
		return models.DefaultTargetRange(), false
	}

	units, ok := store.String("units")
	if !ok {
		units = "mg/dL"
	}
	switch strings.ToLower(units) {
	case "mg/dl", "mgdl":
		low /= models.MgdlPerMmol
		high /= models.MgdlPerMmol
	}
	return models.TargetRange{Low: low, High: high}, true
}

// firstBound reads the first element of the first non-empty list under keys.
// Elements are either numbers or objects with a "value".
func firstBound(store *fields.Object, keys fields.KeyTable) (float64, bool) {
	list, ok := store.FirstArray(keys)
	if !ok {
		return 0, false
	}
	if obj, ok := list[0].(*fields.Object); ok {
		return numberAt(obj, "value")
	}
	return fields.Number(list[0])
}

func numberAt(o *fields.Object, key string) (float64, bool) {
	v, ok := o.Get(key)
	if !ok {
		return 0, false
	}
	return fields.Number(v)
}
