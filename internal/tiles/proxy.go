// Package tiles proxies base layer tiles from the upstream provider, keeping
// the access token on the server and caching re-encoded WebP tiles on disk.
package tiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/woozymasta/quakemap/internal/config"
	"github.com/woozymasta/quakemap/internal/observability"

	"github.com/chai2010/webp"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	tileSize     = 256
	etagCap      = 64
	maxTileBytes = 8 << 20
)

// errNotFound marks tiles the upstream does not have.
var errNotFound = errors.New("tile not found")

// TileCoordinate represents a specific tile.
type TileCoordinate struct {
	Z, X, Y int
}

// Proxy serves /tiles/{layer}/{z}/{x}/{y}.webp.
type Proxy struct {
	cfg     *config.Config
	client  *http.Client
	clock   clockwork.Clock
	metrics *observability.Metrics
	blank   []byte
}

// NewProxy creates a tile proxy for the base layers of cfg.
func NewProxy(cfg *config.Config, clock clockwork.Clock, metrics *observability.Metrics) (*Proxy, error) {
	blank, err := transparentTile()
	if err != nil {
		return nil, fmt.Errorf("encode transparent tile: %w", err)
	}

	return &Proxy{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Tiles.Timeout},
		clock:   clock,
		metrics: metrics,
		blank:   blank,
	}, nil
}

// HasToken reports whether upstream requests can be authenticated.
func (p *Proxy) HasToken() bool {
	return p.cfg.Tiles.AccessToken != ""
}

// ServeHTTP serves one tile. Missing tiles and a missing access token yield
// a transparent tile, so the map degrades to blank instead of broken images.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Path: /tiles/{layer}/{z}/{x}/{y}.webp
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 5 || parts[0] != "tiles" {
		http.NotFound(w, r)
		return
	}

	layer, ok := p.cfg.Layer(parts[1])
	if !ok {
		http.NotFound(w, r)
		return
	}

	coord, ok := p.parseCoord(parts[2], parts[3], parts[4])
	if !ok {
		http.NotFound(w, r)
		return
	}

	if !p.HasToken() {
		p.metrics.TileRequests.WithLabelValues(layer.Key, "blank").Inc()
		p.serveBlank(w)
		return
	}

	path := p.cachePath(layer.Key, coord)

	if info, err := os.Stat(path); err == nil && p.fresh(info) {
		p.metrics.TileRequests.WithLabelValues(layer.Key, "hit").Inc()
		p.serveFile(w, r, path)
		return
	}

	err := p.fetch(r.Context(), layer, coord, path)
	switch {
	case err == nil:
		p.metrics.TileRequests.WithLabelValues(layer.Key, "miss").Inc()
		p.serveFile(w, r, path)
	case errors.Is(err, errNotFound):
		p.metrics.TileRequests.WithLabelValues(layer.Key, "blank").Inc()
		p.serveBlank(w)
	default:
		p.metrics.TileRequests.WithLabelValues(layer.Key, "error").Inc()
		log.Debug().
			Err(err).
			Str("layer", layer.Key).
			Int("z", coord.Z).Int("x", coord.X).Int("y", coord.Y).
			Msg("Failed to fetch tile")

		// a stale copy beats an empty tile
		if _, statErr := os.Stat(path); statErr == nil {
			p.serveFile(w, r, path)
			return
		}
		p.serveBlank(w)
	}
}

func (p *Proxy) parseCoord(zs, xs, ys string) (TileCoordinate, bool) {
	ys = strings.TrimSuffix(ys, ".webp")

	z, errZ := strconv.Atoi(zs)
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	if errZ != nil || errX != nil || errY != nil {
		return TileCoordinate{}, false
	}
	if z < 0 || z > p.cfg.Tiles.MaxZoom {
		return TileCoordinate{}, false
	}

	n := 1 << z
	if x < 0 || x >= n || y < 0 || y >= n {
		return TileCoordinate{}, false
	}

	return TileCoordinate{Z: z, X: x, Y: y}, true
}

func (p *Proxy) cachePath(layer string, c TileCoordinate) string {
	return filepath.Join(
		p.cfg.Tiles.CacheDir,
		layer,
		strconv.Itoa(c.Z),
		strconv.Itoa(c.X),
		strconv.Itoa(c.Y)+".webp")
}

// fresh reports whether a cached tile is younger than the cache TTL.
// A zero TTL keeps tiles forever.
func (p *Proxy) fresh(info os.FileInfo) bool {
	if info.IsDir() || info.Size() == 0 {
		return false
	}
	if p.cfg.Tiles.CacheTTL <= 0 {
		return true
	}

	return p.clock.Since(info.ModTime()) < p.cfg.Tiles.CacheTTL
}

// fetch downloads one tile, converts it to WebP and stores it at outPath.
func (p *Proxy) fetch(ctx context.Context, layer config.BaseLayer, c TileCoordinate, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.buildURL(layer, c), nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status code %d", resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return err
	}

	img, _, err := image.Decode(bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("decode tile: %w", err)
	}

	// Filter out empty/1px tiles often returned by map servers for OOB areas
	if img.Bounds().Dx() <= 1 {
		return errNotFound
	}

	return p.store(outPath, fitTile(img))
}

// fitTile scales retina or 512px upstream tiles down to tileSize.
func fitTile(src image.Image) image.Image {
	b := src.Bounds()
	if b.Dx() == tileSize && b.Dy() == tileSize {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// store encodes img next to path and renames it into place, so concurrent
// readers never see a partial file.
func (p *Proxy) store(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := webp.Encode(tmp, img, &webp.Options{Lossless: false, Quality: p.cfg.Tiles.Quality}); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

func (p *Proxy) buildURL(layer config.BaseLayer, c TileCoordinate) string {
	s := strings.ReplaceAll(p.cfg.Tiles.URL, "{id}", layer.ID)
	s = strings.ReplaceAll(s, "{z}", strconv.Itoa(c.Z))
	s = strings.ReplaceAll(s, "{x}", strconv.Itoa(c.X))
	s = strings.ReplaceAll(s, "{y}", strconv.Itoa(c.Y))
	s = strings.ReplaceAll(s, "{accessToken}", p.cfg.Tiles.AccessToken)

	return s
}

func (p *Proxy) serveBlank(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(p.blank)
}

// serveFile serves a cached tile with ETag generation.
func (p *Proxy) serveFile(w http.ResponseWriter, r *http.Request, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		p.serveBlank(w)
		return
	}

	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, info.Size(), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, info.ModTime().UnixNano(), 16)
	buf = append(buf, '"')
	etag := string(buf)

	// check If-None-Match (client sent ETag)
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	w.Header().Set("Content-Type", "image/webp")

	http.ServeFile(w, r, path)
}

func transparentTile() ([]byte, error) {
	var buf bytes.Buffer
	img := image.NewNRGBA(image.Rect(0, 0, tileSize, tileSize))
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
