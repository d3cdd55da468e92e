// Package server handles HTTP requests and middleware.
package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HandleIndex runs load → map → render and serves the map page.
// When the feed fails the degraded page is served with 502.
func (s *ServerContext) HandleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	res, err := s.Presenter.Render(r.Context(), &buf)
	if err != nil {
		log.Error().Err(err).Msg("Failed to render map page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if res.FeedErr != nil {
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// HandleEarthquakes serves the styled markers as GeoJSON.
func (s *ServerContext) HandleEarthquakes(w http.ResponseWriter, r *http.Request) {
	collection, _, err := s.Presenter.Markers(r.Context())
	if err != nil {
		writeJSON(w, "application/json", http.StatusBadGateway, map[string]string{
			"error": "earthquake feed unavailable",
		})
		return
	}

	writeJSON(w, "application/geo+json", http.StatusOK, collection)
}

// HandleLegend serves the legend entries.
func (s *ServerContext) HandleLegend(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, "application/json", http.StatusOK, map[string]any{
		"title":   s.Config.Legend.Title,
		"entries": s.Presenter.Legend(),
	})
}

// HandleFavicon serves the site favicon.
func (s *ServerContext) HandleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(s.Favicon)
}

// HandleHealth reports liveness.
func (s *ServerContext) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, "application/json", http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, contentType string, status int, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}
