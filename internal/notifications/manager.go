// Package notifications handles system notifications and alerts
package notifications

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/mrcode/nightscout-reconcile/internal/models"
)

const appTitle = "Nightscout Tray"

// Notifier delivers a desktop notification
type Notifier func(title, message string) error

func beeepNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Manager raises an alert when the current glucose leaves the target range
type Manager struct {
	repeat    time.Duration
	notify    Notifier
	lastAlert map[string]time.Time
	mu        sync.Mutex
	log       zerolog.Logger
}

// NewManager creates a notification manager. A repeat of zero alerts only
// once per excursion; otherwise the alert repeats while the value stays out
// of range.
func NewManager(repeat time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		repeat:    repeat,
		notify:    beeepNotify,
		lastAlert: make(map[string]time.Time),
		log:       log.With().Str("component", "notifications").Logger(),
	}
}

// CheckAndNotify alerts on the snapshot's latest reading. Returning to the
// target range resets the alert state.
func (m *Manager) CheckAndNotify(snap *models.Snapshot, now time.Time) error {
	reading, ok := snap.LatestReading()
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	alertType := snap.Target.Classify(reading.Mmol)
	if alertType == models.RangeInRange {
		if len(m.lastAlert) > 0 {
			m.log.Debug().Float64("mmol", reading.Mmol).Msg("Back in range, alert state cleared")
		}
		m.lastAlert = make(map[string]time.Time)
		return nil
	}

	if lastTime, ok := m.lastAlert[alertType]; ok {
		if m.repeat <= 0 || now.Sub(lastTime) < m.repeat {
			return nil
		}
	}

	title, message := formatNotification(reading.Mmol, lo.FromPtr(snap.Metrics.TrendArrow), alertType)
	if err := m.notify(title, message); err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}

	m.log.Info().Str("alert", alertType).Float64("mmol", reading.Mmol).Msg("Alert sent")
	m.lastAlert[alertType] = now
	return nil
}

// formatNotification creates the notification title and message
func formatNotification(mmol float64, trend, alertType string) (string, string) {
	valueStr := fmt.Sprintf("%.1f mmol/L", mmol)

	switch alertType {
	case models.RangeLow:
		return "⬇️ Low Glucose", fmt.Sprintf("Glucose is low: %s %s", valueStr, trend)
	case models.RangeHigh:
		return "⬆️ High Glucose", fmt.Sprintf("Glucose is high: %s %s", valueStr, trend)
	default:
		return appTitle, valueStr
	}
}

// SendTestNotification confirms that notifications reach the desktop
func (m *Manager) SendTestNotification() error {
	return m.notify(appTitle, "Test notification - alerts are working!")
}
