package main

import (
	"context"
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/linuxmatters/jivecanvas/internal/audio"
	"github.com/linuxmatters/jivecanvas/internal/config"
	"github.com/linuxmatters/jivecanvas/internal/renderer"
)

// writeTone writes a mono 16-bit sine to dir and returns its path.
func writeTone(t *testing.T, dir string, seconds float64) string {
	t.Helper()
	const rate = 44100
	path := filepath.Join(dir, "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data := make([]int, int(seconds*rate))
	for i := range data {
		data[i] = int(12000 * math.Sin(2*math.Pi*1378.125*float64(i)/rate))
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	if err := enc.Write(&goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: 1, SampleRate: rate}, Data: data, SourceBitDepth: 16}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadTone(t *testing.T, seconds float64) *audio.Analyzer {
	t.Helper()
	asset, err := readAudio(writeTone(t, t.TempDir(), seconds))
	if err != nil {
		t.Fatal(err)
	}
	a, err := audio.NewAnalyzer(config.FFTSize)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Load(context.Background(), asset); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func barsRenderer(t *testing.T) *renderer.Renderer {
	t.Helper()
	r, err := renderer.New(nil, func() renderer.Params {
		return renderer.Params{Style: renderer.StyleBars, Overlay: renderer.DefaultOverlay()}
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

type countSink struct {
	lastFrame
	n int
}

func (c *countSink) WriteFrame(img *image.RGBA) error {
	c.n++
	return c.lastFrame.WriteFrame(img)
}

func TestBake(t *testing.T) {
	a := loadTone(t, 1)
	sink := &countSink{}

	var last bakeProgress
	calls := 0
	n, err := bake(context.Background(), a, barsRenderer(t), 30, 0, sink, func(p bakeProgress) {
		calls++
		last = p
	})
	if err != nil {
		t.Fatal(err)
	}
	if n < 30 || n > 31 || sink.n != n {
		t.Fatalf("rendered %d frames, sink saw %d; want one second at 30 fps", n, sink.n)
	}
	if last.Frame != n || last.Total != n || last.Image == nil || len(last.Levels) != config.FFTSize/2 {
		t.Errorf("final progress = %+v", last)
	}
	if calls != (n+previewEvery-1)/previewEvery {
		t.Errorf("progress called %d times", calls)
	}

	lit := false
	for i := 0; i < len(sink.img.Pix); i += 4 {
		if sink.img.Pix[i] != 0 || sink.img.Pix[i+1] != 0 || sink.img.Pix[i+2] != 0 {
			lit = true
			break
		}
	}
	if !lit {
		t.Error("a loud tone left the frame black")
	}
}

func TestBakeLimitAndCancel(t *testing.T) {
	a := loadTone(t, 1)

	n, err := bake(context.Background(), a, barsRenderer(t), 30, 5, &countSink{}, nil)
	if err != nil || n != 5 {
		t.Errorf("limited bake = %d, %v; want 5 frames", n, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &countSink{}
	if _, err := bake(ctx, a, barsRenderer(t), 30, 0, sink, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled bake err = %v", err)
	}
	if sink.n != 0 {
		t.Errorf("cancelled bake wrote %d frames", sink.n)
	}
}

type failSink struct{}

func (failSink) WriteFrame(*image.RGBA) error { return errors.New("pipe closed") }

func TestBakeSinkError(t *testing.T) {
	a := loadTone(t, 0.5)
	if _, err := bake(context.Background(), a, barsRenderer(t), 30, 0, failSink{}, nil); err == nil {
		t.Error("sink failure not reported")
	}
}

func TestLastFrameCopies(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Pix[0] = 9
	var l lastFrame
	if err := l.WriteFrame(src); err != nil {
		t.Fatal(err)
	}
	src.Pix[0] = 1
	if l.img.Pix[0] != 9 {
		t.Error("lastFrame aliases the source buffer")
	}
}

func TestOverlayParams(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Style = "dna"
	settings.Overlay.Text = "From settings"

	p, err := Overlay{Color: "#ff0000"}.params(&settings)
	if err != nil {
		t.Fatal(err)
	}
	if p.Style != renderer.StyleDNA || p.Overlay.Text != "From settings" || p.Overlay.Color != "#ff0000" {
		t.Errorf("params = %+v", p)
	}

	p, err = Overlay{Style: "laser", Text: "Flag"}.params(&settings)
	if err != nil {
		t.Fatal(err)
	}
	if p.Style != renderer.StyleBars || p.Overlay.Text != "Flag" {
		t.Errorf("params = %+v", p)
	}

	if _, err := (Overlay{Position: "top"}).params(&settings); err == nil {
		t.Error("invalid position accepted")
	}
}

func TestReadAudio(t *testing.T) {
	dir := t.TempDir()
	asset, err := readAudio(writeTone(t, dir, 0.1))
	if err != nil {
		t.Fatal(err)
	}
	if asset.Name != "tone.wav" || asset.Type != audio.TypeWAV || len(asset.Data) == 0 {
		t.Errorf("asset = %s %s %d bytes", asset.Name, asset.Type, len(asset.Data))
	}

	ogg := filepath.Join(dir, "song.ogg")
	if err := os.WriteFile(ogg, []byte("OggS"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readAudio(ogg); !errors.Is(err, audio.ErrValidation) {
		t.Errorf("ogg err = %v, want ErrValidation", err)
	}
	if _, err := readAudio(filepath.Join(dir, "missing.mp3")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestImageRefs(t *testing.T) {
	for in, want := range map[string]string{
		"cover.jpg":  "image/jpeg",
		"cover.JPEG": "image/jpeg",
		"cover.png":  "image/png",
	} {
		if got := imageType(in); got != want {
			t.Errorf("imageType(%q) = %q, want %q", in, got, want)
		}
	}

	if !isURL("https://cdn.pixabay.com/photo.jpg") || isURL("photos/https.jpg") {
		t.Error("isURL misclassified a reference")
	}
}

func TestNewRuntime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("log_level: warn\nffmpeg_path: /opt/ffmpeg\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rt, err := newRuntime(&Globals{Config: path})
	if err != nil {
		t.Fatal(err)
	}
	if rt.Logger.GetLevel() != log.WarnLevel || rt.ffmpegPath() != "/opt/ffmpeg" {
		t.Errorf("level = %v, ffmpeg = %q", rt.Logger.GetLevel(), rt.ffmpegPath())
	}

	logFile := filepath.Join(t.TempDir(), "jivecanvas.log")
	rt, err = newRuntime(&Globals{Config: path, LogLevel: "debug", LogFile: logFile})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()
	if rt.Logger.GetLevel() != log.DebugLevel {
		t.Errorf("flag did not override level: %v", rt.Logger.GetLevel())
	}
	rt.tuiLogger().Info("to the file")
	rt.Close()
	if data, err := os.ReadFile(logFile); err != nil || len(data) == 0 {
		t.Errorf("log file empty: %v", err)
	}

	if _, err := newRuntime(&Globals{Config: path, LogLevel: "loud"}); err == nil {
		t.Error("invalid level accepted")
	}
}
