package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/woozymasta/quakemap/internal/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `{
  "type": "FeatureCollection",
  "metadata": {"generated": 1700000100000, "title": "USGS All Earthquakes, Past Week", "count": 2},
  "features": [
    {"type": "Feature", "id": "us1",
     "properties": {"place": "10km N of Testville", "time": 1700000000000, "mag": 4.2},
     "geometry": {"type": "Point", "coordinates": [-120.0, 38.0, 10]}},
    {"type": "Feature", "id": "us2",
     "properties": {"place": null, "time": 1700000001000, "mag": null},
     "geometry": {"type": "Point", "coordinates": [-118.5, 34.1, 3.2]}}
  ]
}`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_Success(t *testing.T) {
	srv := serve(t, http.StatusOK, sampleFeed)
	metrics := observability.NewMetricsForTesting()

	fc, err := NewClient(srv.URL, 5*time.Second, metrics).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	first := fc.Features[0].Properties
	require.NotNil(t, first.Place)
	assert.Equal(t, "10km N of Testville", *first.Place)
	assert.Equal(t, int64(1700000000000), *first.Time)
	assert.Equal(t, 4.2, *first.Mag)
	assert.Equal(t, []float64{-120.0, 38.0, 10}, fc.Features[0].Geometry.Coordinates)

	second := fc.Features[1].Properties
	assert.Nil(t, second.Place)
	assert.Nil(t, second.Mag)
	require.NotNil(t, fc.Metadata)
	assert.Equal(t, 2, fc.Metadata.Count)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeedRequests.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.FeedFeatures))
}

func TestFetch_EmptyCollection(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"type":"FeatureCollection","features":null}`)

	fc, err := NewClient(srv.URL, 5*time.Second, observability.NewMetricsForTesting()).Fetch(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, fc.Features)
	assert.Empty(t, fc.Features)
}

func TestFetch_StatusError(t *testing.T) {
	srv := serve(t, http.StatusServiceUnavailable, "down")
	metrics := observability.NewMetricsForTesting()

	_, err := NewClient(srv.URL, 5*time.Second, metrics).Fetch(context.Background())
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeedRequests.WithLabelValues("status")))
}

func TestFetch_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"wrong type", `{"type":"Feature","features":[]}`},
		{"bad feature", `{"type":"FeatureCollection","features":[{"properties":{"mag":"big"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, http.StatusOK, tt.body)

			_, err := NewClient(srv.URL, 5*time.Second, observability.NewMetricsForTesting()).Fetch(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	_, err := NewClient(srv.URL, 50*time.Millisecond, metrics).Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeedRequests.WithLabelValues("transport")))
}

func TestFetch_CancelledContext(t *testing.T) {
	srv := serve(t, http.StatusOK, sampleFeed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL, 5*time.Second, observability.NewMetricsForTesting()).Fetch(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
