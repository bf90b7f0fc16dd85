// Package models contains data structures used throughout the application
package models

import (
	"math"
	"strings"
	"time"
)

// MgdlPerMmol is the conversion factor between mg/dL and mmol/L
const MgdlPerMmol = 18.01559

// Trend arrows
const (
	ArrowDoubleUp      = "↑↑"
	ArrowSingleUp      = "↑"
	ArrowFortyFiveUp   = "↗"
	ArrowFlat          = "→"
	ArrowFortyFiveDown = "↘"
	ArrowSingleDown    = "↓"
	ArrowDoubleDown    = "↓↓"
)

// directionArrows maps lowercased Nightscout direction names to arrows.
// "none" maps to an empty arrow; anything unlisted has no arrow.
var directionArrows = map[string]string{
	"flat":          ArrowFlat,
	"fortyfiveup":   ArrowFortyFiveUp,
	"fortyfivedown": ArrowFortyFiveDown,
	"singleup":      ArrowSingleUp,
	"singledown":    ArrowSingleDown,
	"doubleup":      ArrowDoubleUp,
	"doubledown":    ArrowDoubleDown,
	"none":          "",
}

// MgdlToMmol converts mg/dL to mmol/L, rounded to one decimal
func MgdlToMmol(mgdl float64) float64 {
	return math.Round(mgdl/MgdlPerMmol*10) / 10
}

// GlucoseReading represents a single glucose reading from Nightscout
type GlucoseReading struct {
	Time      time.Time `json:"time"`
	MgDL      float64   `json:"mgdl"`
	Mmol      float64   `json:"mmol"`
	Direction string    `json:"direction,omitempty"` // Trend direction as sent by the uploader
}

// NewGlucoseReading creates a reading, deriving the mmol/L value
func NewGlucoseReading(t time.Time, mgdl float64, direction string) GlucoseReading {
	return GlucoseReading{
		Time:      t,
		MgDL:      mgdl,
		Mmol:      MgdlToMmol(mgdl),
		Direction: direction,
	}
}

// TrendArrow returns the arrow for the reading's direction.
// ok is false when the direction is missing or not recognized.
func (g GlucoseReading) TrendArrow() (string, bool) {
	return ArrowForDirection(g.Direction)
}

// ArrowForDirection maps a Nightscout direction name to an arrow
func ArrowForDirection(direction string) (string, bool) {
	if direction == "" {
		return "", false
	}
	arrow, ok := directionArrows[strings.ToLower(direction)]
	return arrow, ok
}

// ServerStatus represents the Nightscout server status
type ServerStatus struct {
	Status     string         `json:"status"`
	Name       string         `json:"name"`
	Version    string         `json:"version"`
	ServerTime string         `json:"serverTime"`
	APIEnabled bool           `json:"apiEnabled"`
	Settings   ServerSettings `json:"settings,omitempty"`
}

// ServerSettings contains Nightscout server settings
type ServerSettings struct {
	Units      string     `json:"units"`
	Thresholds Thresholds `json:"thresholds,omitempty"`
}

// Thresholds contains glucose threshold settings
type Thresholds struct {
	BGHigh         int `json:"bgHigh"`
	BGLow          int `json:"bgLow"`
	BGTargetTop    int `json:"bgTargetTop"`
	BGTargetBottom int `json:"bgTargetBottom"`
}
