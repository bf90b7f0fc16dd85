package classify

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/nightscout-reconcile/internal/fields"
	"github.com/mrcode/nightscout-reconcile/internal/models"
)

const ts = `"created_at":"2024-03-10T08:00:00Z"`

func record(t *testing.T, body string) *fields.Object {
	t.Helper()
	rec, err := fields.ParseObject([]byte(`{` + ts + `,` + body + `}`))
	require.NoError(t, err)
	return rec
}

func TestRecord_TempBasalPercent(t *testing.T) {
	events, ok := Record(record(t, `"eventType":"Temp Basal","percent":50`))
	require.True(t, ok)
	require.Len(t, events, 1)

	tb, isTemp := events[0].(models.TempBasal)
	require.True(t, isTemp)
	require.NotNil(t, tb.Percent)
	assert.Equal(t, 50.0, *tb.Percent)
	assert.Nil(t, tb.Absolute)
	assert.Equal(t, 0, tb.DurationMinutes)
}

func TestRecord_TempBasalAbsoluteAndDuration(t *testing.T) {
	events, ok := Record(record(t, `"eventType":"temp basal","absolute":0.2,"percent":-50,"duration":30.7,"amount":5`))
	require.True(t, ok)
	require.Len(t, events, 1, "temp basal must not yield a bolus")

	tb := events[0].(models.TempBasal)
	assert.Equal(t, 30, tb.DurationMinutes)
	rate, applied := tb.Rate(1.0)
	assert.True(t, applied)
	assert.Equal(t, 0.2, rate)
	assert.Equal(t, time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC), tb.Start)
}

func TestRecord_CarbsAndBolus(t *testing.T) {
	events, ok := Record(record(t, `"carbs":20,"insulin":1.5`))
	require.True(t, ok)
	require.Len(t, events, 2)

	assert.Equal(t, models.CarbIntake{Time: events[0].EventTime(), Grams: 20}, events[0])
	assert.Equal(t, models.ManualBolus{Time: events[1].EventTime(), Units: 1.5}, events[1])
}

func TestRecord_MicroBolus(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"event type", `"eventType":"SMB","insulin":0.3`},
		{"explicit type", `"type":"SMB","insulin":0.3`},
		{"type substring", `"type":"automatic-smb","insulin":0.3`},
		{"tag", `"tags":["Loop","SMB-auto"],"insulin":0.3`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, ok := Record(record(t, tt.body))
			require.True(t, ok)
			require.Len(t, events, 1)
			assert.Equal(t, models.KindMicroBolus, events[0].Kind())
			assert.Equal(t, 0.3, events[0].(models.MicroBolus).Units)
		})
	}
}

func TestRecord_DoseKeys(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		units float64
		bolus bool
	}{
		{"insulinInUnits", `"insulinInUnits":2`, 2, true},
		{"comma string", `"amount":"1,25"`, 1.25, true},
		{"priority order", `"value":9,"units":"0.5"`, 0.5, true},
		{"unparseable skipped", `"insulin":"n/a","value":1`, 1, true},
		{"first numeric zero stops search", `"insulin":0,"value":3`, 0, false},
		{"negative", `"insulin":-1`, 0, false},
		{"none", `"notes":"hello"`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, ok := Record(record(t, tt.body))
			require.True(t, ok)
			if !tt.bolus {
				assert.Empty(t, events)
				return
			}
			require.Len(t, events, 1)
			assert.Equal(t, tt.units, events[0].(models.ManualBolus).Units)
		})
	}
}

func TestRecord_CarbVariants(t *testing.T) {
	events, ok := Record(record(t, `"carbs":0,"carb_input":12`))
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, 12.0, events[0].(models.CarbIntake).Grams)

	events, ok = Record(record(t, `"carbs":"20"`))
	require.True(t, ok)
	assert.Empty(t, events, "carb strings are not coerced")
}

func TestRecord_NoTimestamp(t *testing.T) {
	rec, err := fields.ParseObject([]byte(`{"insulin":2,"created_at":"not a date"}`))
	require.NoError(t, err)

	_, ok := Record(rec)
	assert.False(t, ok)
}

func TestDoseWithParts(t *testing.T) {
	rec := record(t, `"bolus":{"extended":0.4,"normal":1.1}`)

	_, ok := Dose(rec)
	assert.False(t, ok)

	units, ok := DoseWithParts(rec)
	require.True(t, ok)
	assert.Equal(t, 1.1, units)
}

func TestClassifier_Classify(t *testing.T) {
	records, err := fields.ParseObjects([]byte(`[
		{"created_at":"2024-03-10T08:00:00Z","carbs":30,"insulin":3},
		{"created_at":"2024-03-10T08:05:00Z","eventType":"SMB","insulin":0.2},
		{"mills":1710058200000,"eventType":"Temp Basal","absolute":0,"duration":20},
		{"eventType":"Note","notes":"no time"}
	]`))
	require.NoError(t, err)

	events := New(zerolog.Nop()).Classify(records)

	assert.Len(t, events.ManualBoluses, 1)
	assert.Len(t, events.MicroBoluses, 1)
	assert.Len(t, events.Carbs, 1)
	require.Len(t, events.TempBasals, 1)
	assert.Equal(t, 20, events.TempBasals[0].DurationMinutes)
}

func TestClassifier_Readings(t *testing.T) {
	records, err := fields.ParseObjects([]byte(`[
		{"sgv":144,"dateString":"2024-03-10T08:10:00Z","direction":"Flat"},
		{"mbg":90,"date":1710057600000},
		{"sgv":0,"glucose":100,"dateString":"2024-03-10T08:05:00Z"},
		{"sgv":"120","dateString":"2024-03-10T08:15:00Z"},
		{"sgv":130}
	]`))
	require.NoError(t, err)

	readings := New(zerolog.Nop()).Readings(records)

	require.Len(t, readings, 3)
	assert.Equal(t, 90.0, readings[0].MgDL)
	assert.Equal(t, 100.0, readings[1].MgDL)
	assert.Equal(t, 144.0, readings[2].MgDL)
	assert.Equal(t, 8.0, readings[2].Mmol)
	assert.Equal(t, "Flat", readings[2].Direction)
	assert.True(t, readings[0].Time.Before(readings[1].Time))
}
