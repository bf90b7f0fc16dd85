// Package tray renders the glucose status badge shown in the system tray
package tray

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/rs/zerolog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/sync/semaphore"

	"github.com/mrcode/nightscout-reconcile/internal/models"
)

const (
	osWindows = "windows"

	// StaleAfterMinutes greys out the badge when the last reading is older
	StaleAfterMinutes = 7

	colorUnknown = "#808080"
	colorStale   = "#9ca3af" // Gray-400
	colorError   = "#ef4444" // Red
	colorLow     = "#f97316" // Orange
	colorHigh    = "#facc15" // Yellow
	colorInRange = "#4ade80" // Green
)

// ErrRenderBusy is returned when another render is still running
var ErrRenderBusy = errors.New("icon render already in progress")

// Format is the encoding of a rendered badge
type Format int

// Badge encodings
const (
	FormatPNG Format = iota
	FormatICO
)

// PlatformFormat returns ICO on Windows and PNG elsewhere
func PlatformFormat() Format {
	if runtime.GOOS == osWindows {
		return FormatICO
	}
	return FormatPNG
}

// IconGenerator draws the badge. Only one render runs at a time; a
// concurrent call gets ErrRenderBusy instead of waiting.
type IconGenerator struct {
	sem  *semaphore.Weighted
	face font.Face
	log  zerolog.Logger
}

// NewIconGenerator parses the badge font and creates a generator
func NewIconGenerator(log zerolog.Logger) (*IconGenerator, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing badge font: %w", err)
	}
	return &IconGenerator{
		sem:  semaphore.NewWeighted(1),
		face: truetype.NewFace(f, &truetype.Options{Size: 30}),
		log:  log.With().Str("component", "tray").Logger(),
	}, nil
}

// Render draws the badge for snap: the current value, its trend arrow and
// a background colour for the target range status.
func (g *IconGenerator) Render(snap *models.Snapshot, staleMinutes int, format Format) ([]byte, error) {
	text, arrow, bg := badgeContent(snap, staleMinutes)
	return g.render(text, arrow, bg, format)
}

// RenderError draws the badge shown when a refresh failed without any earlier data
func (g *IconGenerator) RenderError(format Format) ([]byte, error) {
	return g.render("ERR", "", colorError, format)
}

func (g *IconGenerator) render(text, arrow, bg string, format Format) ([]byte, error) {
	if !g.sem.TryAcquire(1) {
		g.log.Debug().Msg("Render skipped, previous render still running")
		return nil, ErrRenderBusy
	}
	defer g.sem.Release(1)

	img := g.draw(text, arrow, bg)
	if format == FormatICO {
		return imageToICO(img)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding badge: %w", err)
	}
	return buf.Bytes(), nil
}

// badgeContent picks the text, arrow and colour for a snapshot
func badgeContent(snap *models.Snapshot, staleMinutes int) (string, string, string) {
	reading, ok := snap.LatestReading()
	if !ok {
		return "---", "", colorUnknown
	}

	text := fmt.Sprintf("%.1f", reading.Mmol)
	arrow := ""
	if snap.Metrics.TrendArrow != nil {
		arrow = *snap.Metrics.TrendArrow
	}
	if staleMinutes > StaleAfterMinutes {
		return text, arrow, colorStale
	}
	return text, arrow, statusColor(snap.Target.Classify(reading.Mmol))
}

func statusColor(rangeStatus string) string {
	switch rangeStatus {
	case models.RangeLow:
		return colorLow
	case models.RangeHigh:
		return colorHigh
	default:
		return colorInRange
	}
}

func (g *IconGenerator) draw(text, arrow, bg string) image.Image {
	const (
		width  = 64
		height = 64
		radius = 16
	)

	dc := gg.NewContext(width, height)
	dc.SetRGBA(0, 0, 0, 0)
	dc.Clear()

	r, gr, b := parseHexColor(bg)
	dc.SetRGB255(int(r), int(gr), int(b))
	dc.DrawRoundedRectangle(0, 0, float64(width), float64(height), float64(radius))
	dc.Fill()

	// Text colour depends on background brightness
	brightness := (int(r)*299 + int(gr)*587 + int(b)*114) / 1000
	if brightness > 128 {
		dc.SetColor(color.Black)
	} else {
		dc.SetColor(color.White)
	}

	dc.SetFontFace(g.face)
	dc.DrawStringAnchored(text, width/2, height/2-12, 0.5, 0.5)

	if arrow != "" {
		drawArrow(dc, width/2, height-16, 24, arrow)
	}
	return dc.Image()
}

// arrowAngles maps trend arrows to a rotation in degrees, 0 pointing up
var arrowAngles = map[string]float64{
	models.ArrowDoubleUp:      0,
	models.ArrowSingleUp:      0,
	models.ArrowFortyFiveUp:   45,
	models.ArrowFlat:          90,
	models.ArrowFortyFiveDown: 135,
	models.ArrowSingleDown:    180,
	models.ArrowDoubleDown:    180,
}

func drawArrow(dc *gg.Context, x, y, size float64, arrow string) {
	angle, ok := arrowAngles[arrow]
	if !ok {
		return
	}

	dc.Push()
	defer dc.Pop()
	dc.Translate(x, y)
	dc.Rotate(gg.Radians(angle))

	if arrow == models.ArrowDoubleUp || arrow == models.ArrowDoubleDown {
		halfSize := size / 2
		drawSingleArrow(dc, 0, -halfSize/2, size*0.8)
		drawSingleArrow(dc, 0, halfSize/2, size*0.8)
		return
	}
	drawSingleArrow(dc, 0, 0, size)
}

func drawSingleArrow(dc *gg.Context, ox, oy, s float64) {
	w := s * 0.5

	dc.NewSubPath()
	dc.MoveTo(ox, oy-s/2) // tip
	dc.LineTo(ox+w/2, oy)
	dc.LineTo(ox+w/6, oy)
	dc.LineTo(ox+w/6, oy+s/2)
	dc.LineTo(ox-w/6, oy+s/2)
	dc.LineTo(ox-w/6, oy)
	dc.LineTo(ox-w/2, oy)
	dc.ClosePath()
	dc.Fill()
}

// parseHexColor parses a hex color string to RGB values
func parseHexColor(hex string) (r, g, b byte) {
	if len(hex) == 7 && hex[0] == '#' {
		_, _ = fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b)
	}
	return
}

// WriteFile replaces path with data. The file is written next to its
// destination and renamed so readers never see a partial image.
func WriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".badge-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing badge: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing badge: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// imageToICO wraps a PNG-encoded image in a single-entry ICO container:
// ICONDIR (6 bytes), one ICONDIRENTRY (16 bytes), then the PNG data.
func imageToICO(img image.Image) ([]byte, error) {
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encoding badge: %w", err)
	}
	pngData := pngBuf.Bytes()

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint16(0)) // reserved
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // type: icon
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // image count

	bounds := img.Bounds()
	buf.WriteByte(icoDimension(bounds.Dx()))
	buf.WriteByte(icoDimension(bounds.Dy()))
	buf.WriteByte(0) // no palette
	buf.WriteByte(0) // reserved
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))  // color planes
	_ = binary.Write(&buf, binary.LittleEndian, uint16(32)) // bits per pixel
	// #nosec G115 -- PNG size is limited by memory and will not overflow uint32
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pngData)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(22)) // data offset

	buf.Write(pngData)
	return buf.Bytes(), nil
}

// icoDimension encodes a width or height, where 0 means 256
func icoDimension(n int) byte {
	if n >= 256 {
		return 0
	}
	return byte(n)
}
