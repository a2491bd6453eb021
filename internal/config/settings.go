package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultSettingsFile is looked up in the working directory when no path is given.
const DefaultSettingsFile = "jivecanvas.yaml"

// Settings is the user-editable configuration loaded from YAML.
type Settings struct {
	LogLevel   string          `yaml:"log_level"`   // debug, info, warn, error
	FFmpegPath string          `yaml:"ffmpeg_path"` // Empty means resolve "ffmpeg" from PATH
	Listen     string          `yaml:"listen"`      // Address for the serve command
	PixabayKey string          `yaml:"pixabay_key"`
	Style      string          `yaml:"style"`
	Overlay    OverlaySettings `yaml:"overlay"`
}

// OverlaySettings configures the text drawn over the composition.
type OverlaySettings struct {
	Text     string `yaml:"text"`
	Position string `yaml:"position"` // start, center, end
	Color    string `yaml:"color"`    // #RRGGBB
	Size     string `yaml:"size"`     // small, medium, large
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		LogLevel: "info",
		Listen:   "127.0.0.1:8080",
		Style:    DefaultStyle,
		Overlay: OverlaySettings{
			Position: DefaultTextPosition,
			Color:    DefaultTextColor,
			Size:     DefaultTextSize,
		},
	}
}

// LoadSettings reads settings from path, falling back to DefaultSettingsFile
// and then to built-in defaults. Environment overrides are applied last.
func LoadSettings(path string) (*Settings, error) {
	cfg := DefaultSettings()

	explicit := path != ""
	if !explicit {
		path = DefaultSettingsFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// No settings file, defaults apply
	default:
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &cfg, nil
}

// Validate checks the overlay parameters.
func (s *Settings) Validate() error {
	if _, _, _, err := ParseHexColor(s.Overlay.Color); err != nil {
		return err
	}
	switch s.Overlay.Position {
	case "start", "center", "end":
	default:
		return fmt.Errorf("overlay.position %q must be start, center or end", s.Overlay.Position)
	}
	if _, ok := TextSizes[s.Overlay.Size]; !ok {
		return fmt.Errorf("overlay.size %q must be small, medium or large", s.Overlay.Size)
	}
	return nil
}

func (s *Settings) applyEnvOverrides() {
	if val, ok := os.LookupEnv("JIVECANVAS_LOG_LEVEL"); ok {
		s.LogLevel = val
	}
	if val, ok := os.LookupEnv("JIVECANVAS_FFMPEG"); ok {
		s.FFmpegPath = val
	}
	if val, ok := os.LookupEnv("JIVECANVAS_LISTEN"); ok {
		s.Listen = val
	}
	if val, ok := os.LookupEnv("PIXABAY_API_KEY"); ok {
		s.PixabayKey = val
	}
}
