package cli

import "github.com/charmbracelet/lipgloss"

// Violet palette shared by the CLI and TUI, matching the canvas accent colours
var (
	// Core colours (dark to bright)
	Indigo   = lipgloss.Color("#4C1D95") // Deep indigo
	Violet   = lipgloss.Color("#7C3AED") // Canvas accent
	Lavender = lipgloss.Color("#C4B5FD") // Bar tips
	Lilac    = lipgloss.Color("#EDE9FE") // Near white

	// Accent colours
	Slate = lipgloss.Color("#94A3B8") // Subtle text
)
