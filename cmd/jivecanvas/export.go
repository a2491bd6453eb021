package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/linuxmatters/jivecanvas/internal/cli"
	"github.com/linuxmatters/jivecanvas/internal/export"
	"github.com/linuxmatters/jivecanvas/internal/session"
	"github.com/linuxmatters/jivecanvas/internal/ui"
)

// ExportCmd runs the still-image export recipe.
type ExportCmd struct {
	Audio  string `arg:"" help:"Song (.mp3 or .wav)." type:"existingfile"`
	Image  string `arg:"" help:"Cover image file or http(s) URL."`
	Output string `short:"o" help:"Output file or directory. Defaults to <song>-visualizer.mp4 here." type:"path" default:"."`
	Plain  bool   `help:"Log progress lines instead of the terminal UI."`
}

// exportEvents receives what the export goroutine reports.
type exportEvents interface {
	Send(msg tea.Msg)
}

// logEvents reports progress through the logger for --plain runs.
type logEvents struct{ rt *Runtime }

func (l logEvents) Send(msg tea.Msg) {
	switch m := msg.(type) {
	case ui.AudioReady:
		l.rt.Logger.Info("audio ready", "name", m.Name, "duration", m.Duration.Round(time.Millisecond))
	case ui.EncodeProgress:
		l.rt.Logger.Info("encoding", "progress", fmt.Sprintf("%d%%", m.Percent))
	}
}

func (c *ExportCmd) Run(rt *Runtime, ctx context.Context) error {
	logger := rt.Logger
	if !c.Plain {
		logger = rt.tuiLogger()
	}
	sess, cleanup, err := rt.newSession(logger, session.WithPreviewLoop(false))
	if err != nil {
		return err
	}
	defer cleanup()

	asset, err := readAudio(c.Audio)
	if err != nil {
		return err
	}
	if err := sess.SetAudio(asset); err != nil {
		return err
	}
	if err := setImage(sess, c.Image); err != nil {
		return err
	}

	if c.Plain {
		path, art, elapsed, err := c.export(ctx, sess, logEvents{rt}, logger)
		if err != nil {
			return exportFailure(err)
		}
		cli.PrintSummary("Export Complete",
			cli.SummaryLine{Key: "Output", Value: path},
			cli.SummaryLine{Key: "Size", Value: cli.FormatBytes(int64(art.Size()))},
			cli.SummaryLine{Key: "Time", Value: cli.FormatDuration(elapsed)},
		)
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel("Export", true)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		path, art, elapsed, err := c.export(ctx, sess, p, logger)
		if err != nil {
			runErr = err
			p.Send(ui.EncodeFailed{Err: err})
			return
		}
		p.Send(ui.EncodeComplete{
			OutputFile: path,
			FileSize:   int64(art.Size()),
			Duration:   sess.Audio().Duration,
			TotalTime:  elapsed,
		})
	}()

	_, uiErr := p.Run()
	// Quitting the UI early abandons the export
	cancel()
	<-done

	if runErr != nil {
		return exportFailure(runErr)
	}
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return fmt.Errorf("running UI: %w", uiErr)
	}
	if model.CompletionSummary() == "" {
		return exportFailure(context.Canceled)
	}
	return nil
}

// export waits for the decode that supplies the duration hint, runs the
// job and saves the artifact.
func (c *ExportCmd) export(ctx context.Context, sess *session.Session, events exportEvents, logger *log.Logger) (string, *export.Artifact, time.Duration, error) {
	start := time.Now()

	if err := sess.WaitAudio(ctx); err != nil {
		if ctx.Err() != nil {
			return "", nil, 0, err
		}
		// ffmpeg may still read what the decoder rejected; progress then
		// comes from ffmpeg's own duration.
		logger.Warn("audio not decoded, exporting without a duration hint", "err", err)
	}
	a := sess.Audio()
	events.Send(ui.AudioReady{Name: a.Name, Duration: a.Duration})

	job, err := sess.RequestExport(ctx, func(pct int) {
		events.Send(ui.EncodeProgress{Percent: pct, Elapsed: time.Since(start)})
	})
	if err != nil {
		return "", nil, 0, err
	}

	select {
	case <-job.Done():
	case <-ctx.Done():
		<-job.Done()
	}
	art, err := job.Result()
	if err != nil {
		return "", nil, 0, err
	}

	path, err := export.DownloadFile(sess.Registry(), art, c.Output)
	if err != nil {
		return "", nil, 0, err
	}
	return path, art, time.Since(start), nil
}

// exportFailure pairs the generic message with the cause.
func exportFailure(err error) error {
	return fmt.Errorf("%s (%w)", session.FailureMessage, err)
}
