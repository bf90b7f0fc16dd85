package statusapi

import (
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/nightscout-reconcile/internal/models"
	"github.com/mrcode/nightscout-reconcile/internal/tray"
)

type fakeProvider struct {
	snap *models.Snapshot
	err  error
}

func (f *fakeProvider) Latest() *models.Snapshot { return f.snap }
func (f *fakeProvider) LastError() error         { return f.err }

var generated = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		CycleID:     "cycle-1",
		GeneratedAt: generated,
		Target:      models.DefaultTargetRange(),
		Readings: []models.GlucoseReading{
			models.NewGlucoseReading(generated.Add(-8*time.Minute), 108, ""),
			models.NewGlucoseReading(generated.Add(-3*time.Minute), 110, "FortyFiveUp"),
		},
		ReadingAge: "vor 3 min",
		Metrics: models.DerivedMetrics{
			TrendArrow:      ptr(models.ArrowFortyFiveUp),
			Delta:           ptr(0.1),
			TotalIOB:        ptr(1.5),
			BolusIOB:        ptr(1.2),
			BasalIOB:        ptr(0.3),
			COB:             ptr(12.4),
			SensorAgeMin:    ptr(2*24*60 + 3*60),
			PumpBattery:     ptr("80%"),
			Reservoir:       ptr("121.3 U"),
			ActiveTempBasal: ptr("Temp +30% · 12 min"),
		},
	}
}

func newTestServer(t *testing.T, p Provider, withIcons bool) *Server {
	t.Helper()
	cfg := Config{Addr: ":0", Log: zerolog.Nop(), Provider: p}
	if withIcons {
		icons, err := tray.NewIconGenerator(zerolog.Nop())
		require.NoError(t, err)
		cfg.Icons = icons
	}
	s := New(cfg)
	s.now = func() time.Time { return generated }
	return s
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		provider   *fakeProvider
		wantCode   int
		wantStatus string
	}{
		{"starting", &fakeProvider{}, http.StatusServiceUnavailable, "starting"},
		{"first refresh failed", &fakeProvider{err: errors.New("boom")}, http.StatusServiceUnavailable, "starting"},
		{"ok", &fakeProvider{snap: testSnapshot()}, http.StatusOK, "ok"},
		{"degraded", &fakeProvider{snap: testSnapshot(), err: errors.New("boom")}, http.StatusOK, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, newTestServer(t, tt.provider, false), "/healthz")
			assert.Equal(t, tt.wantCode, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			if tt.provider.err != nil {
				assert.Equal(t, "boom", resp.LastError)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	rec := get(t, newTestServer(t, &fakeProvider{snap: testSnapshot()}, false), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var d Display
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "6.1", d.Value)
	assert.Equal(t, "mmol/L", d.Unit)
	assert.Equal(t, "↗", d.Trend)
	assert.Equal(t, "+0.1", d.Delta)
	assert.Equal(t, models.RangeInRange, d.Range)
	assert.Equal(t, "vor 3 min", d.Age)
	assert.False(t, d.Stale)
	assert.Equal(t, "1.50 U", d.IOB)
	assert.Equal(t, "1.20 U", d.BolusIOB)
	assert.Equal(t, "0.30 U", d.BasalIOB)
	assert.Equal(t, "12 g", d.COB)
	assert.Equal(t, "2d 3h", d.SensorAge)
	assert.Equal(t, "80%", d.PumpBattery)
	assert.Equal(t, "121.3 U", d.Reservoir)
	assert.Empty(t, d.UploaderBattery)
	assert.Equal(t, "Temp +30% · 12 min", d.TempBasal)
	assert.Contains(t, d.Tooltip, "Status: In Range")
	assert.Equal(t, "2026-03-14T12:00:00Z", d.GeneratedAt)
}

func TestStatus_NoData(t *testing.T) {
	rec := get(t, newTestServer(t, &fakeProvider{}, false), "/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no data yet")
}

func TestSnapshot(t *testing.T) {
	rec := get(t, newTestServer(t, &fakeProvider{snap: testSnapshot()}, false), "/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cycle-1", body["cycleId"])
	assert.Len(t, body["readings"], 2)

	metrics, ok := body["metrics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1.5, metrics["totalIob"])
	assert.NotContains(t, metrics, "uploaderBattery")
}

func TestDisplayFor_Stale(t *testing.T) {
	snap := testSnapshot()
	d := DisplayFor(snap, generated.Add(10*time.Minute))
	assert.True(t, d.Stale)

	empty := DisplayFor(&models.Snapshot{}, generated)
	assert.True(t, empty.Stale)
	assert.Empty(t, empty.Value)
	assert.Empty(t, empty.IOB)
}

func TestBadge(t *testing.T) {
	rec := get(t, newTestServer(t, &fakeProvider{snap: testSnapshot()}, true), "/badge.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	_, err := png.Decode(rec.Body)
	assert.NoError(t, err)
}

func TestBadge_ErrorBeforeFirstRefresh(t *testing.T) {
	rec := get(t, newTestServer(t, &fakeProvider{err: errors.New("down")}, true), "/badge.png")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBadge_DisabledWithoutGenerator(t *testing.T) {
	rec := get(t, newTestServer(t, &fakeProvider{snap: testSnapshot()}, false), "/badge.png")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, &fakeProvider{snap: testSnapshot()}, false)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
