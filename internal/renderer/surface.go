package renderer

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// circleSegments is the polygon resolution used for filled circles.
const circleSegments = 24

// Surface is the visualisation layer: a transparent RGBA canvas with the
// handful of drawing operations the styles need.
type Surface struct {
	img *image.RGBA
	ras *vector.Rasterizer

	// dimTable[i] scales a premultiplied channel value i by the current fade factor
	dimTable [256]uint8
	dimAlpha float64
}

// NewSurface creates a transparent surface of the given size.
func NewSurface(width, height int) *Surface {
	return &Surface{
		img:      image.NewRGBA(image.Rect(0, 0, width, height)),
		ras:      vector.NewRasterizer(0, 0),
		dimAlpha: -1,
	}
}

// Image returns the backing image. Callers must not retain it across ticks.
func (s *Surface) Image() *image.RGBA {
	return s.img
}

// Width returns the surface width in pixels.
func (s *Surface) Width() float64 {
	return float64(s.img.Rect.Dx())
}

// Height returns the surface height in pixels.
func (s *Surface) Height() float64 {
	return float64(s.img.Rect.Dy())
}

// Clear makes every pixel transparent.
func (s *Surface) Clear() {
	clear(s.img.Pix)
}

// Dim fades existing content by alpha, the equivalent of painting
// translucent black over a canvas, except the layer fades toward
// transparent so whatever sits beneath it stays visible.
func (s *Surface) Dim(alpha float64) {
	if alpha != s.dimAlpha {
		keep := 1 - alpha
		for i := range s.dimTable {
			s.dimTable[i] = uint8(float64(i) * keep)
		}
		s.dimAlpha = alpha
	}

	for i, v := range s.img.Pix {
		s.img.Pix[i] = s.dimTable[v]
	}
}

// VerticalGradientRect fills the rectangle at x,y of size w,h with a
// gradient running from bottom colour at the lower edge to top colour at
// the upper edge.
func (s *Surface) VerticalGradientRect(x, y, w, h float64, bottom, top color.RGBA) {
	if w <= 0 || h <= 0 {
		return
	}

	bounds := s.img.Rect
	x0 := max(int(math.Round(x)), bounds.Min.X)
	x1 := min(int(math.Round(x+w)), bounds.Max.X)
	y0 := max(int(math.Round(y)), bounds.Min.Y)
	y1 := min(int(math.Round(y+h)), bounds.Max.Y)
	if x0 >= x1 || y0 >= y1 {
		return
	}

	for py := y0; py < y1; py++ {
		// 0 at the bottom edge, 1 at the top
		t := (y + h - (float64(py) + 0.5)) / h
		t = min(max(t, 0), 1)
		c := lerpRGBA(bottom, top, t)

		row := s.img.Pix[py*s.img.Stride+x0*4 : py*s.img.Stride+x1*4]
		for i := 0; i < len(row); i += 4 {
			row[i] = c.R
			row[i+1] = c.G
			row[i+2] = c.B
			row[i+3] = c.A
		}
	}
}

// Line strokes a segment of the given width with butt ends.
func (s *Surface) Line(x0, y0, x1, y1, width float64, c color.Color) {
	dx, dy := x1-x0, y1-y0
	length := math.Hypot(dx, dy)
	if length == 0 || width <= 0 {
		return
	}

	// Offset perpendicular to the segment by half the width
	nx, ny := -dy/length*width/2, dx/length*width/2
	s.fillPolygon(c,
		[2]float64{x0 + nx, y0 + ny},
		[2]float64{x1 + nx, y1 + ny},
		[2]float64{x1 - nx, y1 - ny},
		[2]float64{x0 - nx, y0 - ny},
	)
}

// Circle fills a circle centred at cx,cy.
func (s *Surface) Circle(cx, cy, r float64, c color.Color) {
	if r <= 0 {
		return
	}

	var pts [circleSegments][2]float64
	for i := range pts {
		a := float64(i) / circleSegments * 2 * math.Pi
		pts[i] = [2]float64{cx + math.Cos(a)*r, cy + math.Sin(a)*r}
	}
	s.fillPolygon(c, pts[:]...)
}

// Text draws str with its baseline starting at x,y.
func (s *Surface) Text(face font.Face, x, y float64, str string, c color.Color) {
	d := &font.Drawer{
		Dst:  s.img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)},
	}
	d.DrawString(str)
}

// fillPolygon rasterises the polygon into the smallest rectangle covering
// it, clipped to the surface.
func (s *Surface) fillPolygon(c color.Color, pts ...[2]float64) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, maxX = min(minX, p[0]), max(maxX, p[0])
		minY, maxY = min(minY, p[1]), max(maxY, p[1])
	}

	r := image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY))).
		Intersect(s.img.Rect)
	if r.Empty() {
		return
	}

	ox, oy := float32(r.Min.X), float32(r.Min.Y)
	s.ras.Reset(r.Dx(), r.Dy())
	s.ras.DrawOp = draw.Over
	s.ras.MoveTo(float32(pts[0][0])-ox, float32(pts[0][1])-oy)
	for _, p := range pts[1:] {
		s.ras.LineTo(float32(p[0])-ox, float32(p[1])-oy)
	}
	s.ras.ClosePath()
	s.ras.Draw(s.img, r, image.NewUniform(c), image.Point{})
}

// lerpRGBA interpolates between two non-premultiplied colours and returns
// a premultiplied result.
func lerpRGBA(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) float64 { return float64(x) + (float64(y)-float64(x))*t }
	alpha := mix(a.A, b.A) / 255
	return color.RGBA{
		R: uint8(mix(a.R, b.R) * alpha),
		G: uint8(mix(a.G, b.G) * alpha),
		B: uint8(mix(a.B, b.B) * alpha),
		A: uint8(alpha * 255),
	}
}
