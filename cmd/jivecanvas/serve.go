package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/linuxmatters/jivecanvas/internal/cli"
	"github.com/linuxmatters/jivecanvas/internal/imagesearch"
	"github.com/linuxmatters/jivecanvas/internal/server"
)

// ServeCmd exposes a session over HTTP for a browser front end.
type ServeCmd struct {
	Listen  string `help:"Listen address. Overrides the settings file." placeholder:"ADDR"`
	Overlay `embed:""`
}

func (c *ServeCmd) Run(rt *Runtime, ctx context.Context) error {
	addr := c.Listen
	if addr == "" {
		addr = rt.Settings.Listen
	}

	sess, cleanup, err := rt.newSession(rt.Logger)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := c.Overlay.apply(sess, rt.Settings); err != nil {
		return err
	}

	opts := []server.Option{server.WithLogger(rt.Logger)}
	if rt.Settings.PixabayKey != "" {
		opts = append(opts, server.WithSearcher(imagesearch.NewClient("", rt.Settings.PixabayKey)))
	} else {
		rt.Logger.Warn("image search disabled", "reason", errNoSearchKey)
	}

	cli.PrintBanner()
	cli.PrintInfo("Listening", "http://"+addr)
	err = server.New(sess, opts...).ListenAndServe(ctx, addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
