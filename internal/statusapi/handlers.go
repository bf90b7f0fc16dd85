package statusapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mrcode/nightscout-reconcile/internal/tray"
)

// HealthResponse is returned by /healthz
type HealthResponse struct {
	Status      string `json:"status"` // ok, degraded or starting
	LastError   string `json:"lastError,omitempty"`
	LastRefresh string `json:"lastRefresh,omitempty"`
}

// handleHealth reports 200 while the last refresh succeeded. A failed
// refresh is degraded but still 200 when older data exists.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.provider.Latest()
	lastErr := s.provider.LastError()

	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK
	if lastErr != nil {
		resp.LastError = lastErr.Error()
		resp.Status = "degraded"
	}
	if snap == nil {
		resp.Status = "starting"
		status = http.StatusServiceUnavailable
	} else {
		resp.LastRefresh = snap.GeneratedAt.Format(timeFormat)
	}

	s.writeJSON(w, status, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.provider.Latest()
	if snap == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no data yet")
		return
	}
	s.writeJSON(w, http.StatusOK, DisplayFor(snap, s.now()))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.provider.Latest()
	if snap == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no data yet")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleBadge(w http.ResponseWriter, _ *http.Request) {
	snap := s.provider.Latest()

	var (
		data []byte
		err  error
	)
	if snap == nil && s.provider.LastError() != nil {
		data, err = s.icons.RenderError(tray.FormatPNG)
	} else {
		data, err = s.icons.Render(snap, snap.StaleMinutes(s.now()), tray.FormatPNG)
	}
	if errors.Is(err, tray.ErrRenderBusy) {
		w.Header().Set("Retry-After", "1")
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Badge render failed")
		s.writeError(w, http.StatusInternalServerError, "render failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
