package server

import (
	"net/http"

	"github.com/woozymasta/quakemap/assets"
	"github.com/woozymasta/quakemap/internal/config"
	"github.com/woozymasta/quakemap/internal/page"
	"github.com/woozymasta/quakemap/internal/tiles"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config    *config.Config
	Presenter *page.Presenter
	Tiles     http.Handler
	Favicon   []byte
}

// NewServerContext initializes the context. A missing tile access token is
// logged and leaves the map with blank base layers.
func NewServerContext(cfg *config.Config, presenter *page.Presenter, proxy *tiles.Proxy) *ServerContext {
	log.Info().
		Str("feed", cfg.FeedURL).
		Int("base_layers", len(cfg.BaseLayers)).
		Int("bands", len(cfg.Bands)).
		Msg("Initializing server context")

	if !proxy.HasToken() {
		log.Warn().Msg("No tile access token configured: base layers will render blank")
	}

	favicon, err := page.NewMinifier().Bytes("image/svg+xml", assets.Favicon)
	if err != nil {
		log.Debug().Err(err).Msg("Favicon minification failed, serving original")
		favicon = assets.Favicon
	}

	return &ServerContext{
		Config:    cfg,
		Presenter: presenter,
		Tiles:     proxy,
		Favicon:   favicon,
	}
}

// Routes registers every endpoint and wraps the mux with request logging.
func (s *ServerContext) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.HandleIndex)
	mux.HandleFunc("GET /api/earthquakes", s.HandleEarthquakes)
	mux.HandleFunc("GET /api/legend", s.HandleLegend)
	mux.Handle("GET /tiles/", s.Tiles)
	mux.HandleFunc("GET /favicon.ico", s.HandleFavicon)
	mux.HandleFunc("GET /healthz", s.HandleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return RequestLogger(mux)
}
