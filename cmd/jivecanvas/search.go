package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/linuxmatters/jivecanvas/internal/cli"
	"github.com/linuxmatters/jivecanvas/internal/imagesearch"
)

var errNoSearchKey = errors.New("no Pixabay API key: set pixabay_key in the settings file or PIXABAY_API_KEY")

// SearchCmd lists Pixabay photos usable as cover images.
type SearchCmd struct {
	Query string `arg:"" optional:"" help:"Search terms. Defaults to \"music\"."`
	Page  int    `help:"Result page." default:"1"`
	Key   string `help:"Pixabay API key. Overrides the settings file."`
}

func (c *SearchCmd) Run(rt *Runtime, ctx context.Context) error {
	key := c.Key
	if key == "" {
		key = rt.Settings.PixabayKey
	}
	if key == "" {
		return errNoSearchKey
	}

	res, err := imagesearch.NewClient("", key).SearchPage(ctx, c.Query, c.Page)
	if err != nil {
		return err
	}

	cli.PrintSection(fmt.Sprintf("%d of %d hits (page %d)", len(res.Hits), res.TotalHits, max(c.Page, 1)))
	for _, hit := range res.Hits {
		cli.PrintInfo(strconv.Itoa(hit.ID), hit.Tags)
		fmt.Println("  " + hit.LargeImageURL)
	}
	if len(res.Hits) > 0 {
		fmt.Println()
		cli.PrintInfo("Use a hit", "jivecanvas export <song> <url>")
	}
	return nil
}
