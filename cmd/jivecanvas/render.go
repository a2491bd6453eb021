package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/linuxmatters/jivecanvas/internal/audio"
	"github.com/linuxmatters/jivecanvas/internal/cli"
	"github.com/linuxmatters/jivecanvas/internal/config"
	"github.com/linuxmatters/jivecanvas/internal/encoder"
	"github.com/linuxmatters/jivecanvas/internal/renderer"
	"github.com/linuxmatters/jivecanvas/internal/ui"
)

// previewEvery is how many frames pass between UI updates.
const previewEvery = 10

// RenderCmd bakes the animated visualiser into a video.
type RenderCmd struct {
	Audio     string `arg:"" help:"Song (.mp3 or .wav)." type:"existingfile"`
	Image     string `arg:"" optional:"" help:"Background image file." type:"existingfile"`
	Output    string `short:"o" help:"Output MP4. Defaults to <song>-visualizer.mp4 next to the song." type:"path"`
	HWAccel   string `name:"hwaccel" help:"Hardware encoder: none, auto, nvenc, qsv, vaapi or videotoolbox." default:"none" placeholder:"TYPE"`
	NoPreview bool   `help:"Disable the frame preview during rendering."`
	Plain     bool   `help:"Log progress lines instead of the terminal UI."`
	Overlay   `embed:""`
}

// frameSink consumes composed frames in order.
type frameSink interface {
	WriteFrame(img *image.RGBA) error
}

// bakeProgress is reported every previewEvery frames and on the last one.
type bakeProgress struct {
	Frame  int
	Total  int
	Levels []float64
	Image  *image.RGBA // A copy the receiver may keep
}

// bake drives r with a frame clock over the analyzer's audio. Each frame
// analyses the window ending at its timestamp, draws one tick and hands the
// composed frame to sink. frames caps the count; zero renders the whole song.
func bake(ctx context.Context, a *audio.Analyzer, r *renderer.Renderer, fps, frames int, sink frameSink, onProgress func(bakeProgress)) (int, error) {
	step := time.Second / time.Duration(fps)
	total := int((a.Duration() + step - 1) / step)
	if frames > 0 {
		total = min(total, frames)
	}

	// The clock the drawers see, so animation speed follows video time
	epoch := time.Unix(0, 0)
	frame := renderer.AcquireFrame()
	defer renderer.ReleaseFrame(frame)

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}

		t := time.Duration(i) * step
		snap := a.SnapshotAt(t)
		r.Draw(snap, epoch.Add(t))
		if err := r.Compose(frame); err != nil {
			return i, err
		}
		if err := sink.WriteFrame(frame); err != nil {
			return i, fmt.Errorf("frame %d: %w", i, err)
		}

		if onProgress != nil && ((i+1)%previewEvery == 0 || i == total-1) {
			img := image.NewRGBA(frame.Rect)
			copy(img.Pix, frame.Pix)
			onProgress(bakeProgress{Frame: i + 1, Total: total, Levels: levelsOf(snap), Image: img})
		}
	}
	return total, nil
}

func levelsOf(s audio.Snapshot) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(v) / 255
	}
	return out
}

// loadComposition decodes the audio and builds an offline renderer with the
// overlay, style and background applied.
func loadComposition(ctx context.Context, rt *Runtime, logger *log.Logger, audioPath, imagePath string, o Overlay, fps int) (*audio.Analyzer, *renderer.Renderer, error) {
	asset, err := readAudio(audioPath)
	if err != nil {
		return nil, nil, err
	}

	params, err := o.params(rt.Settings)
	if err != nil {
		return nil, nil, err
	}

	a, err := audio.NewAnalyzer(config.FFTSize)
	if err != nil {
		return nil, nil, err
	}
	if err := a.Load(ctx, asset); err != nil {
		a.Close()
		return nil, nil, err
	}

	r, err := renderer.New(nil, func() renderer.Params { return params },
		renderer.WithFPS(fps),
		renderer.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, nil, err
	}

	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			a.Close()
			return nil, nil, fmt.Errorf("failed to read image: %w", err)
		}
		bounds := r.Bounds()
		bg, err := renderer.LoadBackground(data, bounds.Dx(), bounds.Dy())
		if err != nil {
			a.Close()
			return nil, nil, err
		}
		r.SetBackground(bg)
	}
	return a, r, nil
}

func (c *RenderCmd) Run(rt *Runtime, ctx context.Context) error {
	hw, err := encoder.ParseHWAccel(c.HWAccel)
	if err != nil {
		return err
	}
	output := c.Output
	if output == "" {
		output = filepath.Join(filepath.Dir(c.Audio), strings.TrimSuffix(filepath.Base(c.Audio), filepath.Ext(c.Audio))+"-visualizer.mp4")
	}

	logger := rt.Logger
	if !c.Plain {
		logger = rt.tuiLogger()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.Plain {
		res, err := c.render(ctx, rt, logger, hw, output, func(msg tea.Msg) {
			if p, ok := msg.(ui.EncodeProgress); ok && p.Frame%(previewEvery*30) == 0 {
				logger.Info("rendering", "frame", p.Frame, "of", p.TotalFrames)
			}
		})
		if err != nil {
			return err
		}
		cli.PrintSummary("Render Complete",
			cli.SummaryLine{Key: "Output", Value: res.OutputFile},
			cli.SummaryLine{Key: "Encoder", Value: res.EncoderName},
			cli.SummaryLine{Key: "Video", Value: fmt.Sprintf("%d frames, %s", res.Frames, cli.FormatDuration(res.Duration))},
			cli.SummaryLine{Key: "Size", Value: cli.FormatBytes(res.FileSize)},
			cli.SummaryLine{Key: "Time", Value: cli.FormatDuration(res.TotalTime)},
		)
		return nil
	}

	model := ui.NewModel("Render", c.NoPreview)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, err := c.render(ctx, rt, logger, hw, output, p.Send)
		if err != nil {
			runErr = err
			p.Send(ui.EncodeFailed{Err: err})
			return
		}
		p.Send(res)
	}()

	_, uiErr := p.Run()
	cancel()
	<-done

	if runErr != nil {
		return runErr
	}
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return fmt.Errorf("running UI: %w", uiErr)
	}
	if model.CompletionSummary() == "" {
		return context.Canceled
	}
	return nil
}

func (c *RenderCmd) render(ctx context.Context, rt *Runtime, logger *log.Logger, hw encoder.HWAccelType, output string, send func(tea.Msg)) (ui.EncodeComplete, error) {
	start := time.Now()

	a, r, err := loadComposition(ctx, rt, logger, c.Audio, c.Image, c.Overlay, config.RenderFPS)
	if err != nil {
		return ui.EncodeComplete{}, err
	}
	defer a.Close()
	send(ui.AudioReady{Name: filepath.Base(c.Audio), Duration: a.Duration()})

	bounds := r.Bounds()
	enc, err := encoder.New(encoder.Config{
		OutputPath: output,
		AudioPath:  c.Audio,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Framerate:  config.RenderFPS,
		FFmpegPath: rt.ffmpegPath(),
		HWAccel:    hw,
		Logger:     logger,
	})
	if err != nil {
		return ui.EncodeComplete{}, err
	}
	if err := enc.Initialize(ctx); err != nil {
		return ui.EncodeComplete{}, err
	}

	frames, err := bake(ctx, a, r, config.RenderFPS, 0, enc, func(p bakeProgress) {
		send(ui.EncodeProgress{
			Percent:     p.Frame * 100 / p.Total,
			Frame:       p.Frame,
			TotalFrames: p.Total,
			Elapsed:     time.Since(start),
			Levels:      p.Levels,
			FrameData:   p.Image,
		})
	})
	if err != nil {
		enc.Abort()
		os.Remove(output)
		return ui.EncodeComplete{}, err
	}
	if err := enc.Close(); err != nil {
		return ui.EncodeComplete{}, err
	}

	info, err := os.Stat(output)
	if err != nil {
		return ui.EncodeComplete{}, err
	}
	return ui.EncodeComplete{
		OutputFile:  output,
		FileSize:    info.Size(),
		Frames:      frames,
		Duration:    time.Duration(frames) * time.Second / config.RenderFPS,
		TotalTime:   time.Since(start),
		EncoderName: enc.Encoder(),
	}, nil
}
