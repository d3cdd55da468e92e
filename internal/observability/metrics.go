// Package observability holds the Prometheus instruments of the map service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quakemap"

// Metrics holds the Prometheus counters and histograms for feed loading,
// page rendering and the tile proxy.
type Metrics struct {
	FeedRequests      *prometheus.CounterVec // labels: outcome={success,transport,status,malformed}
	FeedFetchDuration prometheus.Histogram
	FeedFeatures      prometheus.Gauge

	MarkersRendered prometheus.Counter
	FeaturesSkipped prometheus.Counter
	PageRenders     *prometheus.CounterVec // labels: result={ok,degraded,error}

	TileRequests *prometheus.CounterVec // labels: layer, result={hit,miss,blank,error}
}

func newMetrics() *Metrics {
	return &Metrics{
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_requests_total",
			Help:      "Earthquake feed fetches by outcome.",
		}, []string{"outcome"}),
		FeedFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_fetch_duration_seconds",
			Help:      "Duration of a complete feed fetch and decode.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		FeedFeatures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_features",
			Help:      "Number of features in the last successfully decoded feed.",
		}),
		MarkersRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "markers_rendered_total",
			Help:      "Total markers produced from feed features.",
		}),
		FeaturesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_skipped_total",
			Help:      "Total features dropped because they had no usable position.",
		}),
		PageRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_renders_total",
			Help:      "Map page renders by result.",
		}, []string{"result"}),
		TileRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_requests_total",
			Help:      "Tile proxy requests by layer and result.",
		}, []string{"layer", "result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FeedRequests,
		m.FeedFetchDuration,
		m.FeedFeatures,
		m.MarkersRendered,
		m.FeaturesSkipped,
		m.PageRenders,
		m.TileRequests,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates metrics registered with reg.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
