package metrics

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/nightscout-reconcile/internal/fields"
	"github.com/mrcode/nightscout-reconcile/internal/models"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func objects(t *testing.T, s string) []*fields.Object {
	t.Helper()
	out, err := fields.ParseObjects([]byte(s))
	require.NoError(t, err)
	return out
}

func object(t *testing.T, s string) *fields.Object {
	t.Helper()
	out, err := fields.ParseObject([]byte(s))
	require.NoError(t, err)
	return out
}

func TestLatestSnapshot(t *testing.T) {
	items := objects(t, `[
		{"id":"a","created_at":"2024-03-10T11:50:00Z"},
		{"id":"b","mills":1710071700000},
		{"id":"c"},
		{"id":"d","created_at":"garbage","date":1710071400000}
	]`)

	latest, ok := LatestSnapshot(items)
	require.True(t, ok)
	id, _ := latest.String("id")
	assert.Equal(t, "b", id)

	_, ok = LatestSnapshot(nil)
	assert.False(t, ok)
}

func TestLatestSnapshot_AllUndated(t *testing.T) {
	latest, ok := LatestSnapshot(objects(t, `[{"id":"first"},{"id":"second"}]`))
	require.True(t, ok)
	id, _ := latest.String("id")
	assert.Equal(t, "first", id)
}

func TestFromSnapshot_IOBSplit(t *testing.T) {
	m := FromSnapshot(object(t, `{"openaps":{"iob":{"iob":2.5,"basaliob":0.5}}}`))

	require.NotNil(t, m.BolusIOB)
	require.NotNil(t, m.BasalIOB)
	require.NotNil(t, m.TotalIOB)
	assert.InDelta(t, 2.0, *m.BolusIOB, 1e-9)
	assert.Equal(t, 0.5, *m.BasalIOB)
	assert.Equal(t, 2.5, *m.TotalIOB)
}

func TestFromSnapshot_EmptyOpenAPSFallsThroughToLoop(t *testing.T) {
	m := FromSnapshot(object(t, `{"openaps":{},"loop":{"iob":{"iob":1.0,"basaliob":0.25},"cob":{"cob":8}}}`))

	require.NotNil(t, m.TotalIOB)
	require.NotNil(t, m.BasalIOB)
	require.NotNil(t, m.COB)
	assert.Equal(t, 1.0, *m.TotalIOB)
	assert.Equal(t, 0.25, *m.BasalIOB)
	assert.Equal(t, 8.0, *m.COB)
}

func TestFromSnapshot_IOBVariants(t *testing.T) {
	m := FromSnapshot(object(t, `{"loop":{"iob":{"iob":1.2,"basal_iob":-0.3}}}`))
	require.NotNil(t, m.BasalIOB)
	assert.Equal(t, -0.3, *m.BasalIOB)
	assert.InDelta(t, 1.5, *m.BolusIOB, 1e-9)

	m = FromSnapshot(object(t, `{"loop":{"iob":{"iob":1.2}}}`))
	assert.Nil(t, m.BolusIOB)
	require.NotNil(t, m.TotalIOB)
	assert.Equal(t, 1.2, *m.TotalIOB)

	m = FromSnapshot(object(t, `{"iob":{"iob":0.7}}`))
	require.NotNil(t, m.TotalIOB)
	assert.Equal(t, 0.7, *m.TotalIOB)

	m = FromSnapshot(object(t, `{"iob":0.4}`))
	require.NotNil(t, m.TotalIOB)
	assert.Equal(t, 0.4, *m.TotalIOB)
}

func TestFromSnapshot_COB(t *testing.T) {
	tests := []struct {
		name string
		json string
		want float64
		ok   bool
	}{
		{"loop cob object", `{"openaps":{"cob":{"grams":12}}}`, 12, true},
		{"suggested", `{"openaps":{"suggested":{"COB":18}}}`, 18, true},
		{"cob object beats suggested", `{"openaps":{"cob":{"amount":3},"suggested":{"cob":9}}}`, 3, true},
		{"top level number", `{"COB":7}`, 7, true},
		{"top level object", `{"cob":{"grams":5}}`, 5, true},
		{"deep search", `{"loop":{"enacted":{"mealData":{"COB":22}}}}`, 22, true},
		{"deep search checks keys before children", `{"loop":{"enacted":{"x":{"cob":1}},"COB":4}}`, 4, true},
		{"deep search at depth three", `{"loop":{"a":{"b":{"c":{"cob":2}}}}}`, 2, true},
		{"deep search bounded", `{"loop":{"a":{"b":{"c":{"d":{"cob":1}}}}}}`, 0, false},
		{"string not accepted", `{"openaps":{"cob":{"cob":"12"}}}`, 0, false},
		{"none", `{"pump":{}}`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := FromSnapshot(object(t, tt.json))
			if !tt.ok {
				assert.Nil(t, m.COB)
				return
			}
			require.NotNil(t, m.COB)
			assert.Equal(t, tt.want, *m.COB)
		})
	}
}

func TestFromSnapshot_Devices(t *testing.T) {
	m := FromSnapshot(object(t, `{"pump":{"battery":{"percent":74.6},"reservoir":121.3},"uploader":{"battery":55}}`))
	require.NotNil(t, m.PumpBattery)
	require.NotNil(t, m.Reservoir)
	require.NotNil(t, m.UploaderBattery)
	assert.Equal(t, "74.6%", *m.PumpBattery)
	assert.Equal(t, "121.3 U", *m.Reservoir)
	assert.Equal(t, "55%", *m.UploaderBattery)

	m = FromSnapshot(object(t, `{"pump":{"battery":{"voltage":1.45}}}`))
	require.NotNil(t, m.PumpBattery)
	assert.Equal(t, "1.45 V", *m.PumpBattery)
	assert.Nil(t, m.Reservoir)
	assert.Nil(t, m.UploaderBattery)
}

func TestFromSnapshot_Nil(t *testing.T) {
	assert.Equal(t, StatusMetrics{}, FromSnapshot(nil))
}

func TestDecay_Remaining(t *testing.T) {
	d := DefaultDecay()

	assert.Equal(t, 1.0, d.Remaining(0))
	assert.InDelta(t, 0.5, d.Remaining(60*time.Minute), 1e-12)
	assert.InDelta(t, 0.25, d.Remaining(120*time.Minute), 1e-12)
	assert.Equal(t, 0.0, d.Remaining(300*time.Minute))
	assert.Equal(t, 0.0, d.Remaining(301*time.Minute))
	assert.Equal(t, 0.0, d.Remaining(-time.Minute))
}

func TestFallbackBolusIOB(t *testing.T) {
	records := objects(t, `[
		{"created_at":"2024-03-10T11:00:00Z","insulin":1.0},
		{"created_at":"2024-03-10T07:00:00Z","insulin":4.0},
		{"created_at":"2024-03-10T12:00:00Z","bolus":{"normal":"x","extended":0.5}},
		{"created_at":"2024-03-10T11:00:00Z","insulin":0},
		{"created_at":"2024-03-10T11:00:00Z","eventType":"Temp Basal","absolute":2}
	]`)

	iob := FallbackBolusIOB(records, now, DefaultDecay())
	assert.InDelta(t, 0.5+0.5, iob, 1e-9)
}

func TestFallbackBolusIOB_SingleDose(t *testing.T) {
	records := objects(t, `[{"created_at":"2024-03-10T11:00:00Z","insulin":1.0}]`)
	assert.InDelta(t, 0.5, FallbackBolusIOB(records, now, DefaultDecay()), 1e-9)

	records = objects(t, `[{"created_at":"2024-03-10T07:00:00Z","insulin":1.0}]`)
	assert.Equal(t, 0.0, FallbackBolusIOB(records, now, DefaultDecay()))
}

func TestFallbackCOB(t *testing.T) {
	carbs := []models.CarbIntake{{Time: now, Grams: 20}, {Time: now.Add(-3 * time.Hour), Grams: 15}}
	assert.Equal(t, 35.0, FallbackCOB(carbs))
	assert.Equal(t, 0.0, FallbackCOB(nil))
}

func reading(minutesAgo int, mmol float64, direction string) models.GlucoseReading {
	return models.GlucoseReading{
		Time:      now.Add(-time.Duration(minutesAgo) * time.Minute),
		MgDL:      mmol * models.MgdlPerMmol,
		Mmol:      mmol,
		Direction: direction,
	}
}

func TestTrendArrow_Direction(t *testing.T) {
	readings := []models.GlucoseReading{reading(5, 6, ""), reading(0, 6.2, "DoubleUp")}
	arrow, ok := TrendArrow(readings)
	require.True(t, ok)
	assert.Equal(t, "↑↑", arrow)

	arrow, ok = TrendArrow([]models.GlucoseReading{reading(0, 6, "NONE")})
	require.True(t, ok)
	assert.Equal(t, "", arrow)
}

func TestTrendArrow_Slope(t *testing.T) {
	tests := []struct {
		name   string
		mmol   []float64 // at 15, 10, 5, 0 minutes ago
		arrow  string
		hasOne bool
	}{
		{"exactly half rising", []float64{5.0, 5.0 + 0.5/3, 5.0 + 1.0/3, 5.5}, "↑", true},
		{"mild rise", []float64{5.0, 5.1, 5.2, 5.3}, "↗", true},
		{"flat", []float64{5.0, 5.05, 5.0, 5.05}, "→", true},
		{"exactly minus 0.2", []float64{5.2, 5.2 - 0.2/3, 5.2 - 0.4/3, 5.0}, "↘", true},
		{"falling fast", []float64{7.0, 6.5, 6.0, 5.5}, "↓", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readings := []models.GlucoseReading{
				reading(15, tt.mmol[0], ""),
				reading(10, tt.mmol[1], "NOT COMPUTABLE"),
				reading(5, tt.mmol[2], ""),
				reading(0, tt.mmol[3], "unknown"),
			}
			arrow, ok := TrendArrow(readings)
			assert.Equal(t, tt.hasOne, ok)
			assert.Equal(t, tt.arrow, arrow)
		})
	}
}

func TestSlopeArrow_TooFewReadings(t *testing.T) {
	_, ok := SlopeArrow([]models.GlucoseReading{reading(5, 5, ""), reading(0, 6, "")})
	assert.False(t, ok)
}

func TestSlopeArrow_SparseFallsBackToTail(t *testing.T) {
	// Only the last reading lies within 15 minutes, so the last five are used.
	readings := []models.GlucoseReading{
		reading(60, 5.0, ""),
		reading(45, 6.0, ""),
		reading(30, 7.0, ""),
		reading(0, 9.0, ""),
	}
	arrow, ok := SlopeArrow(readings)
	require.True(t, ok)
	assert.Equal(t, "↑", arrow)
}

func TestDelta(t *testing.T) {
	readings := []models.GlucoseReading{reading(5, 0, ""), reading(0, 0, "")}
	readings[0].MgDL, readings[1].MgDL = 100, 118.01559

	d, ok := Delta(nil, readings)
	require.True(t, ok)
	assert.InDelta(t, 1.0, d, 1e-9)

	entries := objects(t, `[
		{"date":1710072000000,"delta":"+9,00780"},
		{"date":1710071700000,"delta":50}
	]`)
	d, ok = Delta(entries, readings)
	require.True(t, ok)
	assert.InDelta(t, 0.5, d, 1e-6)

	_, ok = Delta(nil, readings[:1])
	assert.False(t, ok)
}

func TestEstimate_DeviceStatus(t *testing.T) {
	in := Input{
		Now:      now,
		Readings: []models.GlucoseReading{reading(0, 6.4, "Flat")},
		Status: object(t, `{"openaps":{"iob":{"iob":1.5,"basaliob":0.25},"cob":{"cob":30}},
			"pump":{"reservoir":80}}`),
		Events: models.Events{Carbs: []models.CarbIntake{{Time: now, Grams: 99}}},
		Decay:  DefaultDecay(),
	}

	m := NewEstimator(zerolog.Nop()).Estimate(in)

	require.NotNil(t, m.CurrentBG)
	assert.Equal(t, 6.4, *m.CurrentBG)
	require.NotNil(t, m.TrendArrow)
	assert.Equal(t, "→", *m.TrendArrow)
	assert.Equal(t, models.SourceDeviceStatus, m.IOBSource)
	assert.InDelta(t, 1.25, *m.BolusIOB, 1e-9)
	assert.Equal(t, 0.25, *m.BasalIOB)
	assert.Equal(t, 1.5, *m.TotalIOB)
	assert.Equal(t, models.SourceDeviceStatus, m.COBSource)
	assert.Equal(t, 30.0, *m.COB)
	assert.Equal(t, "80.0 U", *m.Reservoir)
	assert.Nil(t, m.Delta)
}

func TestEstimate_Fallback(t *testing.T) {
	in := Input{
		Now:        now,
		Treatments: objects(t, `[{"created_at":"2024-03-10T11:00:00Z","insulin":2}]`),
		Events:     models.Events{Carbs: []models.CarbIntake{{Time: now, Grams: 20}}},
		Decay:      DefaultDecay(),
	}

	m := NewEstimator(zerolog.Nop()).Estimate(in)

	assert.Nil(t, m.CurrentBG)
	assert.Nil(t, m.TrendArrow)
	assert.Equal(t, models.SourceFallback, m.IOBSource)
	assert.InDelta(t, 1.0, *m.BolusIOB, 1e-9)
	assert.Equal(t, 0.0, *m.BasalIOB)
	assert.InDelta(t, 1.0, *m.TotalIOB, 1e-9)
	assert.Equal(t, models.SourceFallback, m.COBSource)
	assert.Equal(t, 20.0, *m.COB)
	assert.Nil(t, m.PumpBattery)
}

func TestEstimate_TotalWithoutSplit(t *testing.T) {
	in := Input{
		Now:    now,
		Status: object(t, `{"iob":{"iob":3.3}}`),
		Decay:  DefaultDecay(),
	}

	m := NewEstimator(zerolog.Nop()).Estimate(in)

	assert.Equal(t, models.SourceFallback, m.IOBSource)
	assert.Equal(t, 0.0, *m.BolusIOB)
	assert.Equal(t, 3.3, *m.TotalIOB)
}
