package renderer

import "strings"

// Style selects one of the visualisation algorithms.
type Style string

// The closed set of visualisation styles
const (
	StyleBars      Style = "bars"
	StyleCircular  Style = "circular"
	StyleDNA       Style = "dna"
	StyleStarfield Style = "starfield"
	StyleMatrix    Style = "matrix"
)

// Styles lists every style in display order.
var Styles = []Style{StyleBars, StyleCircular, StyleDNA, StyleStarfield, StyleMatrix}

// ParseStyle maps a tag to a Style. Unknown tags render as bars.
func ParseStyle(tag string) Style {
	s := Style(strings.ToLower(strings.TrimSpace(tag)))
	if _, ok := drawers[s]; ok {
		return s
	}
	return StyleBars
}

// Known reports whether s is one of the defined styles.
func (s Style) Known() bool {
	_, ok := drawers[s]
	return ok
}

func (s Style) String() string {
	return string(s)
}
