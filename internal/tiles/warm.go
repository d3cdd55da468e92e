package tiles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// WarmStats counts the outcome of a cache warm-up run.
type WarmStats struct {
	Fetched int
	Cached  int
	Missing int
	Failed  int
}

type warmResult struct {
	err    error
	cached bool
}

// Warm downloads every tile of a base layer from zoom 0 up to maxZoom into
// the cache using concurrency workers. Fresh cached tiles are left alone.
func (p *Proxy) Warm(ctx context.Context, layerKey string, maxZoom, concurrency int) (WarmStats, error) {
	var stats WarmStats

	if !p.HasToken() {
		return stats, errors.New("tile access token is not set")
	}
	layer, ok := p.cfg.Layer(layerKey)
	if !ok {
		return stats, fmt.Errorf("unknown base layer %q", layerKey)
	}
	if maxZoom > p.cfg.Tiles.MaxZoom {
		maxZoom = p.cfg.Tiles.MaxZoom
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	jobs := make(chan TileCoordinate, concurrency*2)
	results := make(chan warmResult, concurrency*2)

	go func() {
		defer close(jobs)
		for z := 0; z <= maxZoom; z++ {
			n := 1 << z
			for x := 0; x < n; x++ {
				for y := 0; y < n; y++ {
					select {
					case jobs <- TileCoordinate{Z: z, X: x, Y: y}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				path := p.cachePath(layer.Key, c)
				if info, err := os.Stat(path); err == nil && p.fresh(info) {
					results <- warmResult{cached: true}
					continue
				}

				err := p.fetch(ctx, layer, c, path)
				if err != nil && !errors.Is(err, errNotFound) {
					log.Trace().
						Err(err).
						Str("layer", layer.Key).
						Int("z", c.Z).Int("x", c.X).Int("y", c.Y).
						Msg("Failed to warm tile")
				}
				results <- warmResult{err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		switch {
		case res.cached:
			stats.Cached++
		case res.err == nil:
			stats.Fetched++
		case errors.Is(res.err, errNotFound):
			stats.Missing++
		default:
			stats.Failed++
		}
	}

	log.Info().
		Str("layer", layer.Key).
		Int("zoom", maxZoom).
		Int("fetched", stats.Fetched).
		Int("cached", stats.Cached).
		Int("missing", stats.Missing).
		Int("failed", stats.Failed).
		Msg("Tile cache warmed")

	return stats, ctx.Err()
}
