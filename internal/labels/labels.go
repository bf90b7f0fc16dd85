// Package labels places bolus and carb annotations on the glucose chart.
package labels

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/mrcode/nightscout-reconcile/internal/models"
)

// Offsets are in points relative to the glucose value, headroom in mmol/L.
const (
	AboveOffset = 8.0
	FirstBelow  = -10.0
	BelowStep   = -12.0

	// Headroom needed above a value to fit a label above it
	Headroom = 0.9
	// LabelHeight is how far an above label reaches over its value
	LabelHeight = 0.8
)

// Placement is the result of placing all labels
type Placement struct {
	Labels  []models.Label
	Ceiling float64 // axis maximum after making room for the labels
}

type group struct {
	at      time.Time
	boluses []models.ManualBolus
	carbs   []models.CarbIntake
}

// Place annotates every manual bolus and carb entry at the reading at or just
// before its time. Entries sharing an instant form one group: the bolus goes
// above and carbs stack below, unless the value is too close to the ceiling,
// in which case the whole group stacks below. Groups before the first reading
// are skipped.
func Place(readings []models.GlucoseReading, boluses []models.ManualBolus, carbs []models.CarbIntake, ceiling float64) Placement {
	out := Placement{Ceiling: ceiling}
	if len(readings) == 0 {
		return out
	}

	for _, g := range groupByInstant(boluses, carbs) {
		y, ok := valueAt(readings, g.at)
		if !ok {
			continue
		}

		above := y+Headroom <= ceiling
		row := 0
		for _, b := range g.boluses {
			offset := AboveOffset
			if !above {
				offset = belowOffset(row)
				row++
			}
			out.Labels = append(out.Labels, models.Label{
				Time:   g.at,
				Y:      y,
				Offset: offset,
				Text:   fmt.Sprintf("B %.1f IE", b.Units),
				Kind:   models.KindManualBolus,
			})
		}
		for _, c := range g.carbs {
			out.Labels = append(out.Labels, models.Label{
				Time:   g.at,
				Y:      y,
				Offset: belowOffset(row),
				Text:   fmt.Sprintf("C %dg", int(math.Round(c.Grams))),
				Kind:   models.KindCarbIntake,
			})
			row++
		}
	}

	for _, l := range out.Labels {
		if l.Above() {
			out.Ceiling = math.Max(out.Ceiling, l.Y+LabelHeight)
		}
	}
	return out
}

func belowOffset(row int) float64 {
	return FirstBelow + float64(row)*BelowStep
}

func groupByInstant(boluses []models.ManualBolus, carbs []models.CarbIntake) []*group {
	byTime := make(map[time.Time]*group)
	get := func(t time.Time) *group {
		// Map keys compare location too; normalize to UTC.
		key := t.UTC()
		g, ok := byTime[key]
		if !ok {
			g = &group{at: t}
			byTime[key] = g
		}
		return g
	}
	for _, b := range boluses {
		g := get(b.Time)
		g.boluses = append(g.boluses, b)
	}
	for _, c := range carbs {
		g := get(c.Time)
		g.carbs = append(g.carbs, c)
	}

	groups := lo.Values(byTime)
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].at.Before(groups[j].at)
	})
	return groups
}

// valueAt returns the mmol value of the last reading at or before t.
// readings must be sorted by time.
func valueAt(readings []models.GlucoseReading, t time.Time) (float64, bool) {
	i := sort.Search(len(readings), func(i int) bool {
		return readings[i].Time.After(t)
	})
	if i == 0 {
		return 0, false
	}
	return readings[i-1].Mmol, true
}
