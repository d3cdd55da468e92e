// Package feed downloads the earthquake GeoJSON feed.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/woozymasta/quakemap/internal/geo"
	"github.com/woozymasta/quakemap/internal/observability"

	"github.com/rs/zerolog/log"
)

// maxBodySize caps the feed body; the weekly summary feed is a few MiB.
const maxBodySize = 64 << 20

// ErrMalformed is returned when the feed body is not a GeoJSON feature collection.
var ErrMalformed = errors.New("malformed feed")

// StatusError reports a non-200 response from the feed.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed %s: unexpected status %d", e.URL, e.Code)
}

// Client performs single, uncached reads of the feed.
type Client struct {
	httpClient *http.Client
	metrics    *observability.Metrics
	url        string
}

// NewClient creates a feed client for url with a per-request timeout.
func NewClient(url string, timeout time.Duration, metrics *observability.Metrics) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
	}
}

// Fetch issues one GET of the feed and decodes the feature collection.
// There are no retries; every failure is returned to the caller.
func (c *Client) Fetch(ctx context.Context) (*geo.FeatureCollection, error) {
	start := time.Now()
	fc, outcome, err := c.fetch(ctx)

	c.metrics.FeedRequests.WithLabelValues(outcome).Inc()
	c.metrics.FeedFetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		log.Warn().
			Err(err).
			Str("url", c.url).
			Str("outcome", outcome).
			Msg("Feed fetch failed")
		return nil, err
	}

	c.metrics.FeedFeatures.Set(float64(len(fc.Features)))
	log.Debug().
		Str("url", c.url).
		Int("features", len(fc.Features)).
		Dur("duration", time.Since(start)).
		Msg("Feed loaded")

	return fc, nil
}

func (c *Client) fetch(ctx context.Context) (*geo.FeatureCollection, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, "transport", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "transport", fmt.Errorf("feed request: %w", err)
	}
	// Explicitly ignore close error as it's a read-only operation
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "status", &StatusError{URL: c.url, Code: resp.StatusCode}
	}

	var fc geo.FeatureCollection
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&fc); err != nil {
		return nil, "malformed", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, "malformed", fmt.Errorf("%w: type %q is not FeatureCollection", ErrMalformed, fc.Type)
	}
	if fc.Features == nil {
		fc.Features = []geo.Feature{}
	}

	return &fc, "success", nil
}
