package renderer

import (
	"image/color"
	"testing"
)

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func colorClose(t *testing.T, name string, got, want color.RGBA, tolerance int) {
	t.Helper()
	if abs(int(got.R)-int(want.R)) > tolerance ||
		abs(int(got.G)-int(want.G)) > tolerance ||
		abs(int(got.B)-int(want.B)) > tolerance ||
		abs(int(got.A)-int(want.A)) > tolerance {
		t.Errorf("%s = %v, want %v (±%d)", name, got, want, tolerance)
	}
}

// countOpaque counts pixels with any coverage.
func countOpaque(s *Surface) int {
	n := 0
	pix := s.Image().Pix
	for i := 3; i < len(pix); i += 4 {
		if pix[i] > 0 {
			n++
		}
	}
	return n
}

// TestSurface_Dim verifies the trail fade scales every channel, so repeated
// dimming converges on transparent rather than opaque black.
func TestSurface_Dim(t *testing.T) {
	s := NewSurface(4, 4)
	s.VerticalGradientRect(0, 0, 4, 4, color.RGBA{200, 100, 50, 255}, color.RGBA{200, 100, 50, 255})

	s.Dim(0.5)
	colorClose(t, "after one dim", s.Image().RGBAAt(1, 1), color.RGBA{100, 50, 25, 127}, 1)

	for i := 0; i < 40; i++ {
		s.Dim(0.2)
	}
	if got := s.Image().RGBAAt(1, 1); got.A != 0 {
		t.Errorf("after repeated dimming alpha = %d, want 0", got.A)
	}
}

// TestSurface_VerticalGradientRect verifies the bottom edge takes the first
// colour and the top edge the second.
func TestSurface_VerticalGradientRect(t *testing.T) {
	s := NewSurface(20, 100)
	s.VerticalGradientRect(0, 0, 10, 100, accent, highlight)

	colorClose(t, "bottom row", s.Image().RGBAAt(5, 99), accent, 2)
	colorClose(t, "top row", s.Image().RGBAAt(5, 0), highlight, 2)

	if got := s.Image().RGBAAt(15, 50); got.A != 0 {
		t.Errorf("pixel outside rect was painted: %v", got)
	}
}

func TestSurface_LineAndCircle(t *testing.T) {
	s := NewSurface(100, 100)
	red := color.RGBA{255, 0, 0, 255}

	s.Line(10, 50, 90, 50, 3, red)
	colorClose(t, "line midpoint", s.Image().RGBAAt(50, 50), red, 2)
	if got := s.Image().RGBAAt(50, 40); got.A != 0 {
		t.Errorf("pixel away from line painted: %v", got)
	}

	s.Clear()
	s.Circle(50, 50, 10, red)
	colorClose(t, "circle centre", s.Image().RGBAAt(50, 50), red, 2)
	if got := s.Image().RGBAAt(50, 70); got.A != 0 {
		t.Errorf("pixel outside circle painted: %v", got)
	}
}

// TestSurface_OffCanvasShapes verifies that shapes partly or wholly outside
// the canvas are clipped without panicking.
func TestSurface_OffCanvasShapes(t *testing.T) {
	s := NewSurface(50, 50)
	white := color.RGBA{255, 255, 255, 255}

	s.Circle(-100, -100, 5, white)
	s.Line(-10, -10, -20, -20, 3, white)
	s.VerticalGradientRect(60, 60, 10, 10, accent, highlight)
	if n := countOpaque(s); n != 0 {
		t.Errorf("off-canvas shapes painted %d pixels", n)
	}

	s.Circle(0, 0, 10, white)
	s.Line(-10, 25, 60, 25, 3, white)
	s.VerticalGradientRect(-5, 40, 100, 20, accent, highlight)
	if n := countOpaque(s); n == 0 {
		t.Error("partly visible shapes painted nothing")
	}
}

// Zero-length and zero-radius shapes draw nothing, like a canvas stroke
// of a degenerate path.
func TestSurface_DegenerateShapes(t *testing.T) {
	s := NewSurface(20, 20)
	white := color.RGBA{255, 255, 255, 255}

	s.Line(10, 10, 10, 10, 3, white)
	s.Circle(10, 10, 0, white)
	s.VerticalGradientRect(0, 20, 5, 0, accent, highlight)

	if n := countOpaque(s); n != 0 {
		t.Errorf("degenerate shapes painted %d pixels", n)
	}
}
