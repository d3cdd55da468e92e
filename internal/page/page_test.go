package page

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/woozymasta/quakemap/internal/config"
	"github.com/woozymasta/quakemap/internal/geo"
	"github.com/woozymasta/quakemap/internal/observability"
	"github.com/woozymasta/quakemap/internal/quake"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	fc    *geo.FeatureCollection
	err   error
	calls int
}

func (s *stubLoader) Fetch(_ context.Context) (*geo.FeatureCollection, error) {
	s.calls++
	return s.fc, s.err
}

func ptr[T any](v T) *T { return &v }

func testville() *geo.FeatureCollection {
	return &geo.FeatureCollection{
		Type: "FeatureCollection",
		Features: []geo.Feature{{
			Type: "Feature",
			ID:   "us7000test",
			Properties: geo.Properties{
				Place: ptr("10km N of Testville"),
				Time:  ptr(int64(1700000000000)),
				Mag:   ptr(4.2),
			},
			Geometry: geo.Geometry{Type: "Point", Coordinates: []float64{-120.0, 38.0, 10}},
		}},
	}
}

func newTestPresenter(t *testing.T, loader Loader) (*Presenter, *observability.Metrics) {
	t.Helper()

	cfg := config.Default()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	metrics := observability.NewMetricsForTesting()

	renderer, err := NewRenderer(cfg, clock)
	require.NoError(t, err)

	return NewPresenter(loader, quake.NewMapper(cfg), renderer, metrics), metrics
}

func TestBuild_LayersAndViewport(t *testing.T) {
	renderer, err := NewRenderer(config.Default(), clockwork.NewFakeClock())
	require.NoError(t, err)

	v := renderer.Build(nil, nil, nil)

	require.Len(t, v.Settings.BaseLayers, 3)
	assert.Equal(t, Layer{Name: "Light Map", URL: "/tiles/light/{z}/{x}/{y}.webp", Default: true}, v.Settings.BaseLayers[0])
	assert.Equal(t, "Dark Map", v.Settings.BaseLayers[1].Name)
	assert.False(t, v.Settings.BaseLayers[1].Default)
	assert.Equal(t, "Street Map", v.Settings.BaseLayers[2].Name)
	assert.Equal(t, "Earthquakes", v.Settings.Overlay)
	assert.False(t, v.Settings.Collapsed)
	assert.Equal(t, [2]float64{37.09, -95.71}, v.Settings.Center)
	assert.Equal(t, 5, v.Settings.Zoom)
	assert.Equal(t, "bottomright", v.Settings.LegendPosition)
	assert.NotNil(t, v.Settings.Markers)
	assert.Zero(t, v.MarkerCount)
	assert.Empty(t, v.Error)
}

func TestBuild_FeedErrorBanner(t *testing.T) {
	renderer, err := NewRenderer(config.Default(), clockwork.NewFakeClock())
	require.NoError(t, err)

	v := renderer.Build(nil, nil, errors.New("boom"))
	assert.Equal(t, FeedErrorMessage, v.Error)
	assert.Len(t, v.Settings.BaseLayers, 3)
}

func TestRender_Testville(t *testing.T) {
	p, metrics := newTestPresenter(t, &stubLoader{fc: testville()})

	var out bytes.Buffer
	res, err := p.Render(context.Background(), &out)
	require.NoError(t, err)
	require.NoError(t, res.FeedErr)
	assert.Equal(t, quake.Stats{Features: 1, Markers: 1}, res.Stats)

	page := out.String()
	assert.Contains(t, page, "Testville")
	assert.Contains(t, page, "14 Nov 2023 22:13:20 UTC")
	assert.Contains(t, page, "4.2")
	assert.Contains(t, page, "#C65E00")
	assert.Contains(t, page, "us7000test")
	assert.Contains(t, page, "2024-01-02 03:04:05 UTC")
	assert.NotContains(t, page, FeedErrorMessage)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MarkersRendered))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PageRenders.WithLabelValues("ok")))
}

func TestRender_EmptyCollectionStillHasLayersAndLegend(t *testing.T) {
	p, _ := newTestPresenter(t, &stubLoader{fc: &geo.FeatureCollection{Type: "FeatureCollection"}})

	var out bytes.Buffer
	res, err := p.Render(context.Background(), &out)
	require.NoError(t, err)
	require.NoError(t, res.FeedErr)
	assert.Zero(t, res.Stats.Markers)

	page := out.String()
	for _, name := range []string{"Light Map", "Dark Map", "Street Map", "Earthquakes", "Magnitudes"} {
		assert.Contains(t, page, name)
	}
	assert.Equal(t, 6, strings.Count(page, "legend-row"))
	assert.Contains(t, page, "5+")
	assert.Less(t, strings.Index(page, "0–1"), strings.Index(page, "4–5"))
	assert.Less(t, strings.Index(page, "4–5"), strings.Index(page, "5+"))
}

func TestRender_FeedFailureDegrades(t *testing.T) {
	p, metrics := newTestPresenter(t, &stubLoader{err: errors.New("connection refused")})

	var out bytes.Buffer
	res, err := p.Render(context.Background(), &out)
	require.NoError(t, err)
	require.Error(t, res.FeedErr)

	page := out.String()
	assert.Contains(t, page, FeedErrorMessage)
	assert.Contains(t, page, "Light Map")
	assert.Equal(t, 6, strings.Count(page, "legend-row"))
	assert.NotContains(t, page, "connection refused")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PageRenders.WithLabelValues("degraded")))
}

func TestRender_EscapesFeedContent(t *testing.T) {
	fc := testville()
	fc.Features[0].Properties.Place = ptr(`</script><script>alert(1)</script>`)
	p, _ := newTestPresenter(t, &stubLoader{fc: fc})

	var out bytes.Buffer
	_, err := p.Render(context.Background(), &out)
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "<script>alert(1)")
}

func TestMarkers_CountsSkipped(t *testing.T) {
	fc := testville()
	fc.Features = append(fc.Features, geo.Feature{Type: "Feature"})
	p, metrics := newTestPresenter(t, &stubLoader{fc: fc})

	collection, stats, err := p.Markers(context.Background())
	require.NoError(t, err)
	assert.Len(t, collection.Features, 1)
	assert.Equal(t, quake.Stats{Features: 2, Markers: 1, Skipped: 1}, stats)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeaturesSkipped))
}

func TestLegend_BuiltOnce(t *testing.T) {
	p, _ := newTestPresenter(t, &stubLoader{})

	legend := p.Legend()
	require.Len(t, legend, 6)
	assert.Equal(t, "0–1", legend[0].Label)
	assert.Equal(t, "5+", legend[5].Label)
}
