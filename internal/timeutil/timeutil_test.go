package timeutil

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/nightscout-reconcile/internal/fields"
)

func TestParse(t *testing.T) {
	want := time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"zulu", "2024-03-10T08:30:00Z", want},
		{"zulu millis", "2024-03-10T08:30:00.000Z", want},
		{"offset colon", "2024-03-10T09:30:00+01:00", want},
		{"offset compact", "2024-03-10T09:30:00.000+0100", want},
		{"naive is utc", "2024-03-10T08:30:00", want},
		{"naive no seconds", "2024-03-10T08:30", want},
		{"space separator", "2024-03-10 08:30:00", want},
		{"date only", "2024-03-10", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %v", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "yesterday", "10/03/2024", "2024-13-40T00:00:00Z"} {
		_, ok := Parse(s)
		assert.False(t, ok, s)
	}
}

func TestInstant_PrefersString(t *testing.T) {
	rec, err := fields.ParseObject([]byte(`{"date":1000,"dateString":"2024-03-10T08:30:00Z"}`))
	require.NoError(t, err)

	got, ok := EntryInstant(rec)
	require.True(t, ok)
	assert.Equal(t, 2024, got.Year())
}

func TestInstant_FallsBackToEpoch(t *testing.T) {
	ms := time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name string
		json string
	}{
		{"no string", `{"mills":` + itoa(ms) + `}`},
		{"unparseable string", `{"created_at":"garbage","date":` + itoa(ms) + `}`},
		{"numeric timestamp key", `{"timestamp":` + itoa(ms) + `,"date":` + itoa(ms) + `}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := fields.ParseObject([]byte(tt.json))
			require.NoError(t, err)

			got, ok := TreatmentInstant(rec)
			require.True(t, ok)
			assert.Equal(t, ms, got.UnixMilli())
		})
	}
}

func TestInstant_Missing(t *testing.T) {
	rec, err := fields.ParseObject([]byte(`{"created_at":"??","eventType":"Note"}`))
	require.NoError(t, err)

	_, ok := TreatmentInstant(rec)
	assert.False(t, ok)
	assert.Equal(t, int64(0), StatusInstant(rec).Unix())
}

func TestSecondsOfDay(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	ts := time.Date(2024, 3, 10, 23, 15, 30, 0, time.UTC)

	assert.Equal(t, 15*60+30, SecondsOfDay(ts, loc))
	assert.Equal(t, 23*3600+15*60+30, SecondsOfDay(ts, time.UTC))
}

func TestAgoText(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "vor 0 min", AgoText(now.Add(30*time.Second), now))
	assert.Equal(t, "vor 7 min", AgoText(now.Add(-7*time.Minute), now))
	assert.Equal(t, "vor 2 h", AgoText(now.Add(-150*time.Minute), now))
	assert.Equal(t, "", AgoText(time.Time{}, now))
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
