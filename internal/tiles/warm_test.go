package tiles

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarm(t *testing.T) {
	up := newUpstream(t, http.StatusOK)
	p, _, _ := newTestProxy(t, up.srv.URL, testToken)

	stats, err := p.Warm(context.Background(), "light", 2, 4)
	require.NoError(t, err)
	// 1 + 4 + 16 tiles
	assert.Equal(t, WarmStats{Fetched: 21}, stats)
	assert.FileExists(t, p.cachePath("light", TileCoordinate{Z: 2, X: 3, Y: 3}))

	stats, err = p.Warm(context.Background(), "light", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, WarmStats{Cached: 21}, stats)
	assert.Equal(t, int32(21), up.calls.Load())
}

func TestWarm_MissingTiles(t *testing.T) {
	up := newUpstream(t, http.StatusNotFound)
	p, _, _ := newTestProxy(t, up.srv.URL, testToken)

	stats, err := p.Warm(context.Background(), "dark", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, WarmStats{Missing: 5}, stats)
}

func TestWarm_Errors(t *testing.T) {
	up := newUpstream(t, http.StatusOK)

	p, _, _ := newTestProxy(t, up.srv.URL, "")
	_, err := p.Warm(context.Background(), "light", 1, 1)
	require.Error(t, err)

	p, _, _ = newTestProxy(t, up.srv.URL, testToken)
	_, err = p.Warm(context.Background(), "moon", 1, 1)
	require.Error(t, err)
}

func TestWarm_Cancelled(t *testing.T) {
	up := newUpstream(t, http.StatusOK)
	p, _, _ := newTestProxy(t, up.srv.URL, testToken)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Warm(ctx, "light", 3, 2)
	assert.ErrorIs(t, err, context.Canceled)
}
