package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/linuxmatters/jivecanvas/internal/audio"
	"github.com/linuxmatters/jivecanvas/internal/blob"
	"github.com/linuxmatters/jivecanvas/internal/cli"
	"github.com/linuxmatters/jivecanvas/internal/config"
	"github.com/linuxmatters/jivecanvas/internal/export"
	"github.com/linuxmatters/jivecanvas/internal/renderer"
	"github.com/linuxmatters/jivecanvas/internal/session"
)

// version is set via ldflags at build time
// Local dev builds: "dev"
// Release builds: git tag (e.g. "v0.1.0")
var version = "dev"

type versionFlag bool

func (versionFlag) BeforeReset(app *kong.Kong) error {
	cli.PrintVersion(version)
	app.Exit(0)
	return nil
}

// Globals are flags shared by every command. Empty values fall back to the
// settings file.
type Globals struct {
	Config   string      `help:"Settings file (YAML)." type:"path" placeholder:"FILE"`
	LogLevel string      `help:"Log level: debug, info, warn or error." placeholder:"LEVEL"`
	LogFile  string      `help:"Write logs to a file. Terminal UIs discard logs otherwise." type:"path" placeholder:"FILE"`
	FFmpeg   string      `help:"ffmpeg binary." placeholder:"PATH"`
	Version  versionFlag `help:"Show version information"`
}

// Overlay flags override the settings file.
type Overlay struct {
	Style    string `help:"Visualisation: bars, circular, dna, starfield or matrix." placeholder:"STYLE"`
	Text     string `help:"Overlay text."`
	Position string `help:"Overlay position: start, center or end." placeholder:"POS"`
	Color    string `help:"Overlay colour as #RRGGBB." placeholder:"HEX"`
	Size     string `help:"Overlay size: small, medium or large." placeholder:"SIZE"`
}

var CLI struct {
	Globals `embed:""`

	Preview  PreviewCmd  `cmd:"" help:"Play the visualiser live in the terminal."`
	Export   ExportCmd   `cmd:"" help:"Combine a cover image and a song into an MP4."`
	Render   RenderCmd   `cmd:"" help:"Render the animated visualiser to an MP4."`
	Snapshot SnapshotCmd `cmd:"" help:"Save one composed frame as PNG."`
	Search   SearchCmd   `cmd:"" help:"Search Pixabay for cover images."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP and WebSocket server."`
}

// Runtime is what every command receives after settings are resolved.
type Runtime struct {
	Settings *config.Settings
	Logger   *log.Logger
	logFile  io.Closer
}

// tuiLogger returns a logger that does not write over a terminal UI.
func (rt *Runtime) tuiLogger() *log.Logger {
	if rt.logFile != nil {
		return rt.Logger
	}
	l := rt.Logger.With()
	l.SetOutput(io.Discard)
	return l
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("jivecanvas"),
		kong.Description("Turn a song and a cover image into a music visualiser video."),
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	rt, err := newRuntime(&CLI.Globals)
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
	defer rt.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx.BindTo(sigCtx, (*context.Context)(nil))
	if err := ctx.Run(rt); err != nil {
		cli.PrintError(err.Error())
		rt.Close()
		stop()
		os.Exit(1)
	}
}

func newRuntime(g *Globals) (*Runtime, error) {
	settings, err := config.LoadSettings(g.Config)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		settings.LogLevel = g.LogLevel
	}
	if g.FFmpeg != "" {
		settings.FFmpegPath = g.FFmpeg
	}

	rt := &Runtime{Settings: settings}
	var w io.Writer = os.Stderr
	if g.LogFile != "" {
		f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w, rt.logFile = f, f
	}

	rt.Logger, err = cli.NewLogger(w, settings.LogLevel)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Close releases the log file, if any.
func (rt *Runtime) Close() {
	if rt.logFile != nil {
		rt.logFile.Close()
		rt.logFile = nil
	}
}

// ffmpegPath returns the configured binary or "ffmpeg" from PATH.
func (rt *Runtime) ffmpegPath() string {
	if rt.Settings.FFmpegPath != "" {
		return rt.Settings.FFmpegPath
	}
	return "ffmpeg"
}

// newSession wires a session to an ffmpeg-backed export pipeline. The
// returned cleanup closes the session and the engine.
func (rt *Runtime) newSession(logger *log.Logger, opts ...session.Option) (*session.Session, func(), error) {
	reg := blob.NewRegistry()
	engine := export.NewFFmpegEngine(rt.ffmpegPath(), logger)
	pipeline := export.NewPipeline(engine, reg, export.WithLogger(logger))

	opts = append([]session.Option{session.WithLogger(logger)}, opts...)
	sess, err := session.New(pipeline, reg, opts...)
	if err != nil {
		pipeline.Close()
		return nil, nil, err
	}
	return sess, func() {
		sess.Close()
		pipeline.Close()
	}, nil
}

// params resolves composition parameters from settings, then any
// overriding flags.
func (o Overlay) params(s *config.Settings) (renderer.Params, error) {
	pick := func(flag, setting string) string {
		if flag != "" {
			return flag
		}
		return setting
	}

	p := renderer.Params{
		Style: renderer.ParseStyle(pick(o.Style, s.Style)),
		Overlay: renderer.Overlay{
			Text:     pick(o.Text, s.Overlay.Text),
			Position: pick(o.Position, s.Overlay.Position),
			Color:    pick(o.Color, s.Overlay.Color),
			Size:     pick(o.Size, s.Overlay.Size),
		},
	}
	if err := p.Overlay.Validate(); err != nil {
		return renderer.Params{}, err
	}
	return p, nil
}

// apply sets the resolved parameters on sess.
func (o Overlay) apply(sess *session.Session, s *config.Settings) error {
	p, err := o.params(s)
	if err != nil {
		return err
	}
	return sess.SetParams(p)
}

// readAudio loads a song from disk, inferring its type from the extension.
func readAudio(path string) (*audio.Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	name := filepath.Base(path)
	asset := &audio.Asset{Name: name, Type: audio.TypeFromName(name), Data: data}
	if err := asset.Validate(); err != nil {
		return nil, err
	}
	return asset, nil
}

// isURL reports whether ref names a remote image rather than a file.
func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// imageType maps an image file extension to its MIME type.
func imageType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".jpg" {
		// Some mime tables only register .jpeg
		return "image/jpeg"
	}
	t, _, _ := strings.Cut(mime.TypeByExtension(ext), ";")
	return t
}

// setImage selects a local file or a remote URL as the cover image.
func setImage(sess *session.Session, ref string) error {
	if isURL(ref) {
		return sess.SetRemoteImage(ref)
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	return sess.SetLocalImage(filepath.Base(ref), imageType(ref), data)
}
