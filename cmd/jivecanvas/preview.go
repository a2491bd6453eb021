package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/linuxmatters/jivecanvas/internal/ui"
)

// PreviewCmd plays the composition live in the terminal.
type PreviewCmd struct {
	Audio     string `arg:"" help:"Song (.mp3 or .wav)." type:"existingfile"`
	Image     string `arg:"" optional:"" help:"Cover image file or http(s) URL."`
	NoPreview bool   `help:"Show the spectrum only, without the frame preview."`
	Overlay   `embed:""`
}

func (c *PreviewCmd) Run(rt *Runtime, ctx context.Context) error {
	logger := rt.tuiLogger()
	sess, cleanup, err := rt.newSession(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := c.Overlay.apply(sess, rt.Settings); err != nil {
		return err
	}
	asset, err := readAudio(c.Audio)
	if err != nil {
		return err
	}
	if err := sess.SetAudio(asset); err != nil {
		return err
	}
	if c.Image != "" {
		if err := setImage(sess, c.Image); err != nil {
			return err
		}
	}

	p := tea.NewProgram(ui.NewPlayerModel(sess, c.NoPreview), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running UI: %w", err)
	}
	return sess.AudioError()
}
