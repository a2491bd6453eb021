package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Canvas settings
const (
	Width      = 800
	Height     = 600
	PreviewFPS = 60 // Live preview tick rate (browser animation frame rate)
	RenderFPS  = 30 // Baked visualiser render, matches the export recipe framerate
)

// Analysis settings, mirroring a Web Audio AnalyserNode with default options
const (
	FFTSize               = 256
	SmoothingTimeConstant = 0.8
	MinDecibels           = -100.0
	MaxDecibels           = -30.0
)

// Appearance
const (
	// Violet #7c3aed: bar base, dna rungs, matrix glyphs
	AccentR = 124
	AccentG = 58
	AccentB = 237

	// Lavender #c4b5fd: bar tips
	HighlightR = 196
	HighlightG = 181
	HighlightB = 253

	// Per-tick fade applied to the visualisation layer
	TrailAlpha       = 0.2
	MatrixTrailAlpha = 0.1

	MatrixFontSize = 15
	DNAPoints      = 50
)

// Text overlay defaults
const (
	DefaultTextPosition = "center"
	DefaultTextColor    = "#ffffff"
	DefaultTextSize     = "medium"
	DefaultStyle        = "bars"
	TextMargin          = 16 // Padding from canvas edge for start/end positions
)

// TextSizes maps overlay size names to pixel heights.
var TextSizes = map[string]float64{
	"small":  24,
	"medium": 36,
	"large":  60,
}

// Export settings
const (
	// ReleaseDelay is how long a downloaded artifact stays addressable.
	ReleaseDelay = 1 * time.Second

	DefaultSearchQuery = "music"
	SearchPerPage      = 12
	PixabayEndpoint    = "https://pixabay.com/api/"
)

// ParseHexColor parses a colour in RRGGBB or #RRGGBB form.
func ParseHexColor(s string) (r, g, b uint8, err error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid hex colour %q: want 6 hex digits", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex colour %q: %w", s, err)
	}

	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}
