package page

import (
	"bytes"
	"context"
	"io"

	"github.com/woozymasta/quakemap/internal/geo"
	"github.com/woozymasta/quakemap/internal/observability"
	"github.com/woozymasta/quakemap/internal/quake"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

// Loader fetches the earthquake feature collection.
type Loader interface {
	Fetch(ctx context.Context) (*geo.FeatureCollection, error)
}

// Result describes one load → map → render pass.
type Result struct {
	// FeedErr is set when the feed failed; the page was still rendered.
	FeedErr error
	Stats   quake.Stats
}

// Presenter runs the single-shot pipeline: load the feed, map the features
// to markers and render the page.
type Presenter struct {
	loader   Loader
	mapper   *quake.Mapper
	renderer *Renderer
	metrics  *observability.Metrics
	legend   []quake.LegendEntry
}

// NewPresenter wires the pipeline stages. The legend is built once.
func NewPresenter(loader Loader, mapper *quake.Mapper, renderer *Renderer, metrics *observability.Metrics) *Presenter {
	return &Presenter{
		loader:   loader,
		mapper:   mapper,
		renderer: renderer,
		metrics:  metrics,
		legend:   quake.Legend(mapper.Bands()),
	}
}

// Legend returns the legend entries shown on the page.
func (p *Presenter) Legend() []quake.LegendEntry {
	return p.legend
}

// Markers loads the feed and maps it to a marker collection.
func (p *Presenter) Markers(ctx context.Context) (*geojson.FeatureCollection, quake.Stats, error) {
	fc, err := p.loader.Fetch(ctx)
	if err != nil {
		return nil, quake.Stats{}, err
	}

	markers, stats := p.mapper.Markers(fc)
	p.metrics.MarkersRendered.Add(float64(stats.Markers))
	p.metrics.FeaturesSkipped.Add(float64(stats.Skipped))

	if stats.Skipped > 0 {
		log.Info().
			Int("features", stats.Features).
			Int("skipped", stats.Skipped).
			Msg("Some features had no position and were not mapped")
	}

	return p.mapper.Collection(markers), stats, nil
}

// Render runs the pipeline once and writes the page to w. A feed failure
// does not abort the render: the page shows an error banner over the base
// layers and legend, and the failure is reported in Result.FeedErr.
// The returned error is only set when the page itself could not be rendered.
func (p *Presenter) Render(ctx context.Context, w io.Writer) (Result, error) {
	collection, stats, feedErr := p.Markers(ctx)

	view := p.renderer.Build(collection, p.legend, feedErr)

	// render fully before writing so a template failure leaves w untouched
	var buf bytes.Buffer
	if err := p.renderer.Render(&buf, view); err != nil {
		p.metrics.PageRenders.WithLabelValues("error").Inc()
		return Result{FeedErr: feedErr, Stats: stats}, err
	}

	result := "ok"
	if feedErr != nil {
		result = "degraded"
	}
	p.metrics.PageRenders.WithLabelValues(result).Inc()

	if _, err := w.Write(buf.Bytes()); err != nil {
		return Result{FeedErr: feedErr, Stats: stats}, err
	}

	return Result{FeedErr: feedErr, Stats: stats}, nil
}
