package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(250 * time.Millisecond); got != "250ms" {
		t.Errorf("got %q", got)
	}
	if got := FormatDuration(2500 * time.Millisecond); got != "2.5s" {
		t.Errorf("got %q", got)
	}
}

func TestFormatSummary(t *testing.T) {
	out := FormatSummary("Export Complete", []SummaryLine{
		{"Output", "song-visualizer.mp4"},
		{"Size", "1.0 MB"},
	})
	for _, want := range []string{"Export Complete", "Output:", "song-visualizer.mp4", "Size:", "1.0 MB"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn")
	if err != nil {
		t.Fatal(err)
	}
	if logger.GetLevel() != log.WarnLevel {
		t.Errorf("level = %v", logger.GetLevel())
	}

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") || !strings.Contains(out, "key=value") {
		t.Errorf("unexpected log output %q", out)
	}

	if _, err := NewLogger(&buf, "chatty"); err == nil {
		t.Error("invalid level accepted")
	}
}

func TestStyledHelpPrinter(t *testing.T) {
	var grammar struct {
		Verbose bool `help:"Talk more."`
		Render  struct {
			Output string `arg:"" help:"Output file."`
			FPS    int    `help:"Frame rate." default:"30"`
		} `cmd:"" help:"Render a video."`
		Serve struct{} `cmd:"" help:"Start the server."`
	}

	var out bytes.Buffer
	parser, err := kong.New(&grammar,
		kong.Name("jivecanvas"),
		kong.Writers(&out, &out),
		kong.Help(StyledHelpPrinter(kong.HelpOptions{Compact: true})),
		kong.Exit(func(int) {}),
	)
	if err != nil {
		t.Fatal(err)
	}

	_, _ = parser.Parse([]string{"--help"})
	help := out.String()
	for _, want := range []string{"Usage:", "Commands:", "render", "Render a video.", "serve", "--verbose"} {
		if !strings.Contains(help, want) {
			t.Errorf("top-level help missing %q:\n%s", want, help)
		}
	}

	out.Reset()
	_, _ = parser.Parse([]string{"render", "--help"})
	help = out.String()
	for _, want := range []string{"Arguments:", "--fps", "(default: 30)", "Global Flags:", "--verbose"} {
		if !strings.Contains(help, want) {
			t.Errorf("render help missing %q:\n%s", want, help)
		}
	}
}
