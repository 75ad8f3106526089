// Package gallery composes catalog records into a grid of deferred image
// loaders and drives a simulated viewport over it.
package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/lehigh-university-libraries/portfolio/internal/lazyimage"
	"github.com/lehigh-university-libraries/portfolio/internal/models"
)

// Tile is one record placed on the page
type Tile struct {
	Record models.ImageRecord
	Bounds lazyimage.Rect
	Row    int
}

// Layout places records left to right, top to bottom
func Layout(records []models.ImageRecord, columns int, tileWidth, tileHeight, gap float64) []Tile {
	if columns < 1 {
		columns = 1
	}
	tiles := make([]Tile, 0, len(records))
	for i, r := range records {
		row, col := i/columns, i%columns
		tiles = append(tiles, Tile{
			Record: r,
			Row:    row,
			Bounds: lazyimage.Rect{
				X:      float64(col) * (tileWidth + gap),
				Y:      float64(row) * (tileHeight + gap),
				Width:  tileWidth,
				Height: tileHeight,
			},
		})
	}
	return tiles
}

type VerifyOptions struct {
	Columns    int
	TileWidth  float64
	TileHeight float64
	Gap        float64
	// ViewportWidth and ViewportHeight size the simulated window
	ViewportWidth  float64
	ViewportHeight float64
	// Step is how far each scroll moves. Defaults to half the viewport height.
	Step float64
	// PriorityRows marks the first rows as above-the-fold content
	PriorityRows int
	// RootMargin is passed to every loader. Nil uses the loader default.
	RootMargin *float64
	Threshold  float64
	LocalHosts []string
	// BaseURL, when set, points loaders at the API's raw endpoint instead of
	// the record's embedded data.
	BaseURL string
}

func (o *VerifyOptions) defaults() {
	if o.Columns < 1 {
		o.Columns = 3
	}
	if o.TileWidth <= 0 {
		o.TileWidth = 320
	}
	if o.TileHeight <= 0 {
		o.TileHeight = 240
	}
	if o.ViewportWidth <= 0 {
		o.ViewportWidth = 1280
	}
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = 720
	}
	// every column has to fit the viewport, the scroll is vertical only
	if span := float64(o.Columns)*o.TileWidth + float64(o.Columns-1)*o.Gap; span > o.ViewportWidth {
		o.TileWidth = max((o.ViewportWidth-float64(o.Columns-1)*o.Gap)/float64(o.Columns), 1)
	}
	if o.Step <= 0 {
		o.Step = o.ViewportHeight / 2
	}
	if o.Step > o.ViewportHeight {
		o.Step = o.ViewportHeight
	}
}

// Outcome is the final state of one record's loader
type Outcome struct {
	ID           string
	Name         string
	Priority     bool
	State        lazyimage.State
	EffectiveSrc string
	Err          error
}

// Verify renders one loader per record, scrolls to the bottom of the page,
// and waits for every loader that was triggered.
func Verify(ctx context.Context, records []models.ImageRecord, fetcher lazyimage.Fetcher, opts VerifyOptions) ([]Outcome, error) {
	opts.defaults()

	tiles := Layout(records, opts.Columns, opts.TileWidth, opts.TileHeight, opts.Gap)
	watcher := lazyimage.NewViewportWatcher(lazyimage.Rect{Width: opts.ViewportWidth, Height: opts.ViewportHeight})

	loaders := make([]*lazyimage.Loader, 0, len(tiles))
	pageHeight := 0.0
	for _, tile := range tiles {
		l := lazyimage.New(ctx, lazyimage.Options{
			Src:        sourceFor(tile.Record, opts.BaseURL),
			Alt:        tile.Record.Name,
			Width:      int(opts.TileWidth),
			Height:     int(opts.TileHeight),
			Priority:   tile.Row < opts.PriorityRows,
			RootMargin: opts.RootMargin,
			Threshold:  opts.Threshold,
			LocalHosts: opts.LocalHosts,
			Bounds:     tile.Bounds,
		}, watcher, fetcher)
		l.Start()
		loaders = append(loaders, l)
		pageHeight = max(pageHeight, tile.Bounds.Y+tile.Bounds.Height)
	}

	for y := opts.Step; y < pageHeight; y += opts.Step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		watcher.SetViewport(lazyimage.Rect{Y: y, Width: opts.ViewportWidth, Height: opts.ViewportHeight})
	}
	slog.Debug("Gallery scrolled", "tiles", len(tiles), "page_height", pageHeight, "unobserved", watcher.Pending())

	outcomes := make([]Outcome, 0, len(loaders))
	for i, l := range loaders {
		if l.State() != lazyimage.Pending {
			select {
			case <-l.Done():
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		outcomes = append(outcomes, Outcome{
			ID:           tiles[i].Record.ID,
			Name:         tiles[i].Record.Name,
			Priority:     tiles[i].Row < opts.PriorityRows,
			State:        l.State(),
			EffectiveSrc: l.EffectiveSrc(),
			Err:          l.Err(),
		})
	}
	return outcomes, nil
}

func sourceFor(r models.ImageRecord, baseURL string) string {
	if baseURL == "" {
		return r.URL
	}
	return strings.TrimSuffix(baseURL, "/") + "/api/images/" + url.PathEscape(r.ID) + "/raw"
}

// Summary counts outcomes by state
func Summary(outcomes []Outcome) map[lazyimage.State]int {
	counts := make(map[lazyimage.State]int)
	for _, o := range outcomes {
		counts[o.State]++
	}
	return counts
}

// Failed returns an error naming every outcome that did not load
func Failed(outcomes []Outcome) error {
	var names []string
	for _, o := range outcomes {
		if o.State != lazyimage.Loaded {
			names = append(names, o.Name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d images did not load: %s", len(names), len(outcomes), strings.Join(names, ", "))
}
