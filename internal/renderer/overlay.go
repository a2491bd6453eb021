package renderer

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/linuxmatters/jivecanvas/internal/config"
)

// Overlay is the optional text drawn on top of the composition.
type Overlay struct {
	Text     string
	Position string // start, center, end
	Color    string // #RRGGBB
	Size     string // small, medium, large
}

// DefaultOverlay returns an empty overlay with default styling.
func DefaultOverlay() Overlay {
	return Overlay{
		Position: config.DefaultTextPosition,
		Color:    config.DefaultTextColor,
		Size:     config.DefaultTextSize,
	}
}

// Validate checks position, colour and size.
func (o Overlay) Validate() error {
	switch o.Position {
	case "start", "center", "end":
	default:
		return fmt.Errorf("text position %q must be start, center or end", o.Position)
	}
	if _, _, _, err := config.ParseHexColor(o.Color); err != nil {
		return fmt.Errorf("text colour: %w", err)
	}
	if _, ok := config.TextSizes[o.Size]; !ok {
		return fmt.Errorf("text size %q must be small, medium or large", o.Size)
	}
	return nil
}

// faceCache holds one bold face per overlay size.
type faceCache map[string]font.Face

func (fc faceCache) face(size string) (font.Face, error) {
	if f, ok := fc[size]; ok {
		return f, nil
	}
	px, ok := config.TextSizes[size]
	if !ok {
		px = config.TextSizes[config.DefaultTextSize]
	}
	f, err := BoldFace(px)
	if err != nil {
		return nil, err
	}
	fc[size] = f
	return f, nil
}

// drawOverlay renders o centred horizontally and aligned vertically by
// Position. Invalid colours fall back to white.
func drawOverlay(img *image.RGBA, face font.Face, o Overlay) {
	if o.Text == "" || face == nil {
		return
	}

	c := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	if r, g, b, err := config.ParseHexColor(o.Color); err == nil {
		c = color.RGBA{R: r, G: g, B: b, A: 255}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
	}

	b := img.Bounds()
	metrics := face.Metrics()
	ascent, descent := metrics.Ascent.Ceil(), metrics.Descent.Ceil()
	textWidth := d.MeasureString(o.Text).Ceil()

	x := b.Min.X + (b.Dx()-textWidth)/2
	var y int
	switch o.Position {
	case "start":
		y = b.Min.Y + config.TextMargin + ascent
	case "end":
		y = b.Max.Y - config.TextMargin - descent
	default:
		y = b.Min.Y + (b.Dy()+ascent-descent)/2
	}

	d.Dot = fixed.P(x, y)
	d.DrawString(o.Text)
}
