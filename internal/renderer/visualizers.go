package renderer

import (
	"image/color"
	"math"
	"math/rand/v2"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"

	"github.com/linuxmatters/jivecanvas/internal/audio"
	"github.com/linuxmatters/jivecanvas/internal/config"
)

// Tick is everything a drawing algorithm sees for one animation frame.
type Tick struct {
	Data audio.Snapshot
	Now  time.Time
	Rand *rand.Rand

	// GlyphFace draws matrix glyphs; nil skips them
	GlyphFace font.Face
}

// millis returns the tick time in fractional milliseconds since the epoch.
func (t Tick) millis() float64 {
	return float64(t.Now.UnixNano()) / 1e6
}

// DrawFunc renders one frame of a style onto the surface.
type DrawFunc func(s *Surface, t Tick)

var drawers = map[Style]DrawFunc{
	StyleBars:      drawBars,
	StyleCircular:  drawCircular,
	StyleDNA:       drawDNA,
	StyleStarfield: drawStarfield,
	StyleMatrix:    drawMatrix,
}

// DrawerFor returns the algorithm for style, falling back to bars.
func DrawerFor(style Style) DrawFunc {
	if fn, ok := drawers[style]; ok {
		return fn
	}
	return drawBars
}

var (
	accent    = color.RGBA{R: config.AccentR, G: config.AccentG, B: config.AccentB, A: 255}
	highlight = color.RGBA{R: config.HighlightR, G: config.HighlightG, B: config.HighlightB, A: 255}
)

// hsl returns the colour for hue h in degrees at 70% saturation, 50% lightness.
func hsl(h float64) color.RGBA {
	r, g, b := colorful.Hsl(h, 0.7, 0.5).RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func accentAlpha(a float64) color.NRGBA {
	return color.NRGBA{R: config.AccentR, G: config.AccentG, B: config.AccentB, A: uint8(min(max(a, 0), 1) * 255)}
}

// drawBars lays bins left to right as gradient bars rising from the bottom edge.
func drawBars(s *Surface, t Tick) {
	s.Dim(config.TrailAlpha)

	w, h := s.Width(), s.Height()
	n := float64(len(t.Data))
	if n == 0 {
		return
	}
	barWidth := w / n * 2.5

	x := 0.0
	for _, v := range t.Data {
		barHeight := float64(v) / 255 * h
		s.VerticalGradientRect(x, h-barHeight, barWidth, barHeight, accent, highlight)
		x += barWidth + 1
	}
}

// drawCircular radiates one spoke per bin from a ring a third of the canvas wide.
func drawCircular(s *Surface, t Tick) {
	s.Dim(config.TrailAlpha)

	w, h := s.Width(), s.Height()
	cx, cy := w/2, h/2
	radius := min(w, h) / 3
	n := float64(len(t.Data))

	for i, v := range t.Data {
		amplitude := float64(v) / 255
		angle := float64(i) / n * 2 * math.Pi
		length := amplitude * radius

		cos, sin := math.Cos(angle), math.Sin(angle)
		s.Line(cx+cos*radius, cy+sin*radius, cx+cos*(radius+length), cy+sin*(radius+length), 3, hsl(float64(i)/n*360))
	}
}

// drawDNA draws a double helix whose twist width follows the low bins.
func drawDNA(s *Surface, t Tick) {
	s.Dim(config.TrailAlpha)

	n := len(t.Data)
	if n == 0 {
		return
	}

	w, h := s.Width(), s.Height()
	seconds := t.millis() * 0.001
	points := config.DNAPoints

	for i := 0; i < points; i++ {
		amplitude := float64(t.Data[i%n]) / 255
		y := float64(i) / float64(points) * h
		offset := math.Sin(seconds+float64(i)*0.2) * 100 * amplitude
		c := hsl(float64(i) / float64(points) * 360)

		s.Circle(w/2-offset, y, 5, c)
		s.Circle(w/2+offset, y, 5, c)
		s.Line(w/2-offset, y, w/2+offset, y, 1, accentAlpha(amplitude*0.5))
	}
}

// drawStarfield moves one star per bin outward at a speed set by the mean level.
func drawStarfield(s *Surface, t Tick) {
	s.Dim(config.TrailAlpha)

	n := float64(len(t.Data))
	if n == 0 {
		return
	}

	w, h := s.Width(), s.Height()
	cx, cy := w/2, h/2
	limit := w / 2
	speed := t.Data.Average() / 255 * 5
	ms := t.millis()

	for i, v := range t.Data {
		amplitude := float64(v) / 255
		angle := float64(i) / n * 2 * math.Pi
		distance := math.Mod(ms*speed*0.001+float64(i), limit)

		x := cx + math.Cos(angle)*distance
		y := cy + math.Sin(angle)*distance
		opacity := 1 - distance/limit

		s.Circle(x, y, amplitude*3, color.NRGBA{R: 255, G: 255, B: 255, A: uint8(min(max(opacity, 0), 1) * 255)})
	}
}

// matrixGlyphs stands in for the half-width katakana block, which the
// bundled monospace face does not cover.
var matrixGlyphs = []rune("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZΑΒΓΔΕΖΗΘΙΚΛΜΝΞΟΠΡΣΤΥΦΧΨΩαβγδεζηθικλμνξπρστφψω@#$%&*+=<>")

// drawMatrix drops one random glyph per column; louder bins fall faster and brighter.
func drawMatrix(s *Surface, t Tick) {
	s.Dim(config.MatrixTrailAlpha)

	n := len(t.Data)
	if n == 0 || t.GlyphFace == nil {
		return
	}

	w, h := s.Width(), s.Height()
	fontSize := float64(config.MatrixFontSize)
	columns := w / fontSize
	ms := t.millis()

	for i := 0; float64(i) < columns; i++ {
		amplitude := float64(t.Data[i%n]) / 255
		y := math.Mod(ms*0.01*amplitude+float64(i)*fontSize, h)

		glyph := matrixGlyphs[t.Rand.IntN(len(matrixGlyphs))]
		s.Text(t.GlyphFace, float64(i)*fontSize, y, string(glyph), accentAlpha(amplitude))
	}
}
