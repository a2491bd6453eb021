package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Violet palette
var (
	indigo   = lipgloss.Color("#4C1D95")
	violet   = lipgloss.Color("#7C3AED")
	lavender = lipgloss.Color("#C4B5FD")
	lilac    = lipgloss.Color("#EDE9FE")
	slate    = lipgloss.Color("#94A3B8")
	rose     = lipgloss.Color("#E11D48")
)

// spectrumColors runs from quiet to loud.
var spectrumColors = []lipgloss.Color{
	"#2E1065",
	"#4C1D95",
	"#5B21B6",
	"#6D28D9",
	"#7C3AED",
	"#8B5CF6",
	"#A78BFA",
	"#C4B5FD",
}

var spectrumBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// renderSpectrum draws levels (0..1) as two rows of block characters,
// sampling the input down to at most width columns.
func renderSpectrum(levels []float64, width int) string {
	if len(levels) == 0 || width <= 0 {
		return ""
	}

	stride := max(len(levels)/width, 1)
	display := make([]float64, 0, width)
	for i := 0; i < len(levels) && len(display) < width; i += stride {
		display = append(display, min(max(levels[i], 0), 1))
	}

	last := len(spectrumBlocks) - 1
	styled := func(level float64, block rune) string {
		c := spectrumColors[min(int(level*float64(len(spectrumColors)-1)), len(spectrumColors)-1)]
		return lipgloss.NewStyle().Foreground(c).Render(string(block))
	}

	var top, bottom strings.Builder
	for _, level := range display {
		if level > 0.5 {
			top.WriteString(styled(level, spectrumBlocks[min(int((level-0.5)*2*float64(last)), last)]))
			bottom.WriteString(styled(level, spectrumBlocks[last]))
		} else {
			top.WriteString(" ")
			bottom.WriteString(styled(level, spectrumBlocks[min(int(level*2*float64(last)), last)]))
		}
	}

	return top.String() + "\n" + bottom.String()
}

// levels scales byte magnitudes to 0..1.
func levels(data []uint8) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v) / 255
	}
	return out
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// formatClock renders d as m:ss.
func formatClock(d time.Duration) string {
	s := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
