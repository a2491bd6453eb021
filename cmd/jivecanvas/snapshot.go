package main

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/linuxmatters/jivecanvas/internal/cli"
	"github.com/linuxmatters/jivecanvas/internal/config"
	"github.com/linuxmatters/jivecanvas/internal/renderer"
)

// SnapshotCmd saves the composition at one point in the song.
type SnapshotCmd struct {
	Audio   string        `arg:"" help:"Song (.mp3 or .wav)." type:"existingfile"`
	Image   string        `arg:"" optional:"" help:"Background image file." type:"existingfile"`
	At      time.Duration `help:"Time offset into the song." default:"10s"`
	Output  string        `short:"o" help:"Output PNG. Defaults to <song>-snapshot.png next to the song." type:"path"`
	Overlay `embed:""`
}

// lastFrame keeps a copy of the most recent frame.
type lastFrame struct {
	img *image.RGBA
}

func (l *lastFrame) WriteFrame(img *image.RGBA) error {
	if l.img == nil || l.img.Rect != img.Rect {
		l.img = image.NewRGBA(img.Rect)
	}
	copy(l.img.Pix, img.Pix)
	return nil
}

func (c *SnapshotCmd) Run(rt *Runtime, ctx context.Context) error {
	if c.At < 0 {
		return fmt.Errorf("--at must not be negative")
	}
	output := c.Output
	if output == "" {
		output = filepath.Join(filepath.Dir(c.Audio), strings.TrimSuffix(filepath.Base(c.Audio), filepath.Ext(c.Audio))+"-snapshot.png")
	}

	a, r, err := loadComposition(ctx, rt, rt.Logger, c.Audio, c.Image, c.Overlay, config.RenderFPS)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.At > a.Duration() {
		return fmt.Errorf("--at %s is past the end of the song (%s)", c.At, a.Duration().Round(time.Millisecond))
	}

	// Trails and smoothing build up over time, so every frame up to the
	// offset is drawn.
	frames := int(c.At*config.RenderFPS/time.Second) + 1
	sink := &lastFrame{}
	if _, err := bake(ctx, a, r, config.RenderFPS, frames, sink, nil); err != nil {
		return err
	}
	if sink.img == nil {
		return fmt.Errorf("no frame rendered")
	}

	if err := renderer.SavePNG(sink.img, output); err != nil {
		return err
	}
	cli.PrintSuccess(fmt.Sprintf("Saved %s at %s", output, c.At))
	return nil
}
