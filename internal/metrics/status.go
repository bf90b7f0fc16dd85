// Package metrics derives IOB, COB, trend and device values for one refresh.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"

	"github.com/mrcode/nightscout-reconcile/internal/fields"
	"github.com/mrcode/nightscout-reconcile/internal/timeutil"
)

// cobSearchDepth bounds the deep COB search inside the loop object
const cobSearchDepth = 3

// StatusMetrics are the values read directly from a device status.
// Nil fields were not reported.
type StatusMetrics struct {
	COB             *float64
	BolusIOB        *float64
	BasalIOB        *float64
	TotalIOB        *float64
	PumpBattery     *string
	Reservoir       *string
	UploaderBattery *string
}

// LatestSnapshot returns the device status with the newest timestamp.
// Records without a timestamp sort as the Unix epoch; ties keep the earlier record.
func LatestSnapshot(items []*fields.Object) (*fields.Object, bool) {
	if len(items) == 0 {
		return nil, false
	}
	latest := items[0]
	latestAt := timeutil.StatusInstant(latest)
	for _, item := range items[1:] {
		if at := timeutil.StatusInstant(item); at.After(latestAt) {
			latest, latestAt = item, at
		}
	}
	return latest, true
}

// FromSnapshot reads IOB, COB and device values from a device status
func FromSnapshot(snap *fields.Object) StatusMetrics {
	var m StatusMetrics
	if snap == nil {
		return m
	}

	loop, hasLoop := snap.FirstObject(fields.LoopObject)
	if hasLoop {
		if iob, ok := loop.Object("iob"); ok {
			total, totalOK := iob.Number("iob")
			if totalOK {
				m.TotalIOB = lo.ToPtr(total)
			}
			if basalIOB, _, ok := iob.FirstNumber(fields.BasalIOB, fields.StrictNumber); ok && totalOK {
				m.BolusIOB = lo.ToPtr(total - basalIOB)
				m.BasalIOB = lo.ToPtr(basalIOB)
			}
		}
	}

	if m.TotalIOB == nil {
		if total, ok := topLevelIOB(snap); ok {
			m.TotalIOB = lo.ToPtr(total)
		}
	}

	if cob, ok := statusCOB(snap, loop, hasLoop); ok {
		m.COB = lo.ToPtr(cob)
	}

	if pump, ok := snap.Object("pump"); ok {
		if battery, ok := pump.Object("battery"); ok {
			if pct, ok := battery.Number("percent"); ok {
				m.PumpBattery = lo.ToPtr(strconv.FormatFloat(pct, 'f', -1, 64) + "%")
			} else if volts, ok := battery.Number("voltage"); ok {
				m.PumpBattery = lo.ToPtr(strconv.FormatFloat(volts, 'f', -1, 64) + " V")
			}
		}
		if units, ok := pump.Number("reservoir"); ok {
			m.Reservoir = lo.ToPtr(fmt.Sprintf("%.1f U", units))
		}
	}

	if uploader, ok := snap.Object("uploader"); ok {
		if pct, ok := uploader.Number("battery"); ok {
			m.UploaderBattery = lo.ToPtr(strconv.FormatFloat(pct, 'f', -1, 64) + "%")
		}
	}

	return m
}

// statusCOB looks for carbs on board in the places loop uploaders put them,
// most specific first.
func statusCOB(snap, loop *fields.Object, hasLoop bool) (float64, bool) {
	if hasLoop {
		if obj, ok := loop.Object("cob"); ok {
			if cob, _, ok := obj.FirstNumber(fields.COBObject, fields.StrictNumber); ok {
				return cob, true
			}
		}
		if suggested, ok := loop.Object("suggested"); ok {
			if cob, _, ok := suggested.FirstNumber(fields.COBSuggested, fields.StrictNumber); ok {
				return cob, true
			}
		}
	}

	for _, k := range fields.COBTopLevel {
		v, ok := snap.Get(k)
		if !ok {
			continue
		}
		if cob, ok := fields.StrictNumber(v); ok {
			return cob, true
		}
		if obj, ok := v.(*fields.Object); ok {
			if cob, _, ok := obj.FirstNumber(fields.COBTopObject, fields.StrictNumber); ok {
				return cob, true
			}
		}
		break
	}

	if hasLoop {
		return fields.SearchLevels(loop, cobSearchDepth, fields.KeyIn(fields.KeyTable{"cob"}), fields.StrictNumber)
	}
	return 0, false
}

func topLevelIOB(snap *fields.Object) (float64, bool) {
	v, ok := snap.Get("iob")
	if !ok {
		return 0, false
	}
	if total, ok := fields.StrictNumber(v); ok {
		return total, true
	}
	if obj, ok := v.(*fields.Object); ok {
		return obj.Number("iob")
	}
	return 0, false
}
