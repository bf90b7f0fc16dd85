package tray

import (
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"

	"github.com/mrcode/nightscout-reconcile/internal/models"
	"github.com/mrcode/nightscout-reconcile/internal/sage"
)

const (
	unitMmol = "mmol/L"

	// historySize is how many readings the sparkline shows (2 hours at 5 min)
	historySize = 24
	// sparkPadding widens the multi-line chart range in mmol/L
	sparkPadding = 0.5
	// windowsTooltipLimit is the Windows tray tooltip limit in UTF-16 units
	windowsTooltipLimit = 128

	staleMark = " ⚠"
)

// Tooltip builds the hover text for the badge. compact keeps it within the
// Windows tooltip limit; the full version adds a chart and the loop metrics.
func Tooltip(snap *models.Snapshot, staleMinutes int, compact bool) string {
	reading, ok := snap.LatestReading()
	if !ok {
		return "No glucose data"
	}

	valueStr := fmt.Sprintf("%.1f", reading.Mmol)
	trend := lo.FromPtr(snap.Metrics.TrendArrow)
	rangeStatus := snap.Target.Classify(reading.Mmol)
	history := History(snap.Readings)
	stale := staleMinutes > StaleAfterMinutes

	if compact {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s%s %s\n", valueStr, unitMmol, trend)
		if spark := CompactSparkline(history); spark != "" {
			sb.WriteString(spark)
			sb.WriteString("\n")
		}
		sb.WriteString(formatCompactStatus(rangeStatus) + " " + formatCompactDuration(staleMinutes))
		if stale {
			sb.WriteString(staleMark)
		}
		return truncateRunes(sb.String(), windowsTooltipLimit)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s\n", valueStr, unitMmol, trend)
	if spark := MultiLineSparkline(history); spark != "" {
		sb.WriteString(spark)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Status: %s\nUpdated: %s ago", formatStatus(rangeStatus), formatDuration(staleMinutes))
	if line := metricsLine(snap.Metrics); line != "" {
		sb.WriteString("\n" + line)
	}
	if stale {
		sb.WriteString("\n⚠️ No fresh data (check connection)")
	}
	return sb.String()
}

// metricsLine summarizes IOB, COB, sensor age and an active temp basal
func metricsLine(m models.DerivedMetrics) string {
	var parts []string
	if m.TotalIOB != nil {
		parts = append(parts, fmt.Sprintf("IOB %.2f U", *m.TotalIOB))
	}
	if m.COB != nil {
		parts = append(parts, fmt.Sprintf("COB %.0f g", *m.COB))
	}
	if m.SensorAgeMin != nil {
		if age, ok := sage.FormatAge(*m.SensorAgeMin); ok {
			parts = append(parts, "SAGE "+age)
		}
	}
	if m.ActiveTempBasal != nil {
		parts = append(parts, *m.ActiveTempBasal)
	}
	return strings.Join(parts, " · ")
}

// History returns the mmol/L values of the newest readings for the sparkline
func History(readings []models.GlucoseReading) []float64 {
	if len(readings) > historySize {
		readings = readings[len(readings)-historySize:]
	}
	return lo.Map(readings, func(r models.GlucoseReading, _ int) float64 { return r.Mmol })
}

// formatStatus returns a human-readable status string
func formatStatus(rangeStatus string) string {
	switch rangeStatus {
	case models.RangeLow:
		return "Low"
	case models.RangeHigh:
		return "High"
	case models.RangeInRange:
		return "In Range"
	default:
		return rangeStatus
	}
}

// formatDuration formats minutes into a human-readable duration
func formatDuration(minutes int) string {
	if minutes < 1 {
		return "just now"
	}
	if minutes == 1 {
		return "1 minute"
	}
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	hours := minutes / 60
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}

// formatCompactStatus returns a compact status string for Windows tooltips
func formatCompactStatus(rangeStatus string) string {
	switch rangeStatus {
	case models.RangeLow:
		return "↓Low"
	case models.RangeHigh:
		return "↑High"
	case models.RangeInRange:
		return "✓OK"
	default:
		return rangeStatus
	}
}

// formatCompactDuration formats minutes into a compact duration for Windows
func formatCompactDuration(minutes int) string {
	if minutes < 1 {
		return "now"
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh", minutes/60)
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// Braille cells filled from the bottom: empty, 1/4, 1/2, 3/4, full
var brailleBlocks = []rune{'⠀', '⣀', '⣤', '⣶', '⣿'}

// CompactSparkline renders values as two rows of Braille cells, one column
// per value. It needs at least two values.
func CompactSparkline(values []float64) string {
	if len(values) < 2 {
		return ""
	}

	minVal, maxVal := lo.Min(values), lo.Max(values)
	rangeVal := maxVal - minVal
	if rangeVal == 0 {
		rangeVal = 1
	}

	var top, bottom strings.Builder
	for _, v := range values {
		// 0..8 quarter cells across both rows
		level := int(math.Round((v - minVal) / rangeVal * 8))
		lower := min(level, 4)
		upper := max(0, level-4)
		if lower == 0 {
			lower = 1 // keep the baseline visible
		}
		top.WriteRune(brailleBlocks[upper])
		bottom.WriteRune(brailleBlocks[lower])
	}
	return top.String() + "\n" + bottom.String()
}

// MultiLineSparkline renders a 10-row Braille chart with min and max labels
func MultiLineSparkline(values []float64) string {
	if len(values) < 2 {
		return ""
	}

	const height = 10
	const subBlocksPerLine = 4.0

	minVal := math.Max(0, lo.Min(values)-sparkPadding)
	maxVal := lo.Max(values) + sparkPadding
	rangeVal := maxVal - minVal

	rows := make([][]rune, height)
	for i := range rows {
		rows[i] = []rune(strings.Repeat(string(brailleBlocks[0]), len(values)))
	}

	for x, v := range values {
		total := (v - minVal) / rangeVal * height * subBlocksPerLine
		for y := 0; y < height; y++ {
			lineIdx := height - 1 - y
			lineStart := float64(y) * subBlocksPerLine
			lineEnd := float64(y+1) * subBlocksPerLine

			if total >= lineEnd {
				rows[lineIdx][x] = brailleBlocks[4]
			} else if total > lineStart {
				remainder := int(math.Round(total - lineStart))
				remainder = max(0, min(remainder, len(brailleBlocks)-1))
				rows[lineIdx][x] = brailleBlocks[remainder]
			}
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Max: %.1f\n", maxVal)
	for _, row := range rows {
		sb.WriteString(string(row))
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Min: %.1f", minVal)
	return sb.String()
}
