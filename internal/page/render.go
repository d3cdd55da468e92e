// Package page builds and renders the interactive earthquake map page.
package page

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/woozymasta/quakemap/assets"
	"github.com/woozymasta/quakemap/internal/config"
	"github.com/woozymasta/quakemap/internal/quake"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"
)

// FeedErrorMessage is shown on the page when the earthquake feed could not be loaded.
const FeedErrorMessage = "Earthquake data could not be loaded. Showing base layers only."

// View is everything the page template needs.
type View struct {
	Settings    Settings
	Title       string
	Error       string
	GeneratedAt string
	Legend      Legend
	MarkerCount int
}

// Settings is serialized into the page script and drives the Leaflet setup.
type Settings struct {
	Markers        *geojson.FeatureCollection `json:"markers"`
	Attribution    string                     `json:"attribution"`
	Overlay        string                     `json:"overlay"`
	LegendPosition string                     `json:"legendPosition"`
	BaseLayers     []Layer                    `json:"baseLayers"`
	Center         [2]float64                 `json:"center"`
	Zoom           int                        `json:"zoom"`
	MaxZoom        int                        `json:"maxZoom"`
	Collapsed      bool                       `json:"collapsed"`
}

// Layer is one selectable base layer as seen by the browser.
type Layer struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Default bool   `json:"default"`
}

// Legend is the legend control content.
type Legend struct {
	Title   string
	Entries []quake.LegendEntry
}

type templateData struct {
	View
	CSS template.CSS
	JS  template.JS
}

// Renderer turns a View into a minified HTML document.
type Renderer struct {
	cfg   *config.Config
	tmpl  *template.Template
	min   *minify.M
	clock clockwork.Clock
	css   template.CSS
	js    template.JS
}

// NewMinifier returns a minifier for the content types the service emits.
func NewMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	m.AddFunc("text/javascript", js.Minify)
	m.AddFunc("image/svg+xml", svg.Minify)
	return m
}

// NewRenderer parses the embedded template and pre-minifies its style and script.
func NewRenderer(cfg *config.Config, clock clockwork.Clock) (*Renderer, error) {
	m := NewMinifier()

	cssMin, err := m.String("text/css", assets.Style)
	if err != nil {
		return nil, fmt.Errorf("minify CSS: %w", err)
	}
	jsMin, err := m.String("text/javascript", assets.Script)
	if err != nil {
		return nil, fmt.Errorf("minify JS: %w", err)
	}

	tmpl, err := template.New("index").Parse(assets.IndexTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	return &Renderer{
		cfg:   cfg,
		tmpl:  tmpl,
		min:   m,
		clock: clock,
		css:   template.CSS(cssMin),
		js:    template.JS(jsMin),
	}, nil
}

// Build assembles the view: every configured base layer, the earthquake
// overlay, and the legend. A non-nil fetchErr adds a visible error banner;
// the base layers and legend are still present.
func (r *Renderer) Build(markers *geojson.FeatureCollection, legend []quake.LegendEntry, fetchErr error) View {
	if markers == nil {
		markers = geojson.NewFeatureCollection()
	}

	def := r.cfg.DefaultLayer()
	layers := make([]Layer, 0, len(r.cfg.BaseLayers))
	for _, l := range r.cfg.BaseLayers {
		layers = append(layers, Layer{
			Name:    l.Name,
			URL:     "/tiles/" + l.Key + "/{z}/{x}/{y}.webp",
			Default: l.Key == def.Key,
		})
	}

	v := View{
		Title:       r.cfg.Title,
		GeneratedAt: r.clock.Now().In(r.cfg.Location()).Format("2006-01-02 15:04:05 MST"),
		MarkerCount: len(markers.Features),
		Legend: Legend{
			Title:   r.cfg.Legend.Title,
			Entries: legend,
		},
		Settings: Settings{
			Center:         r.cfg.View.Center,
			Zoom:           r.cfg.View.Zoom,
			MaxZoom:        r.cfg.Tiles.MaxZoom,
			Attribution:    r.cfg.Tiles.Attribution,
			BaseLayers:     layers,
			Overlay:        r.cfg.Overlay,
			Collapsed:      false,
			LegendPosition: r.cfg.Legend.Position,
			Markers:        markers,
		},
	}
	if fetchErr != nil {
		v.Error = FeedErrorMessage
	}

	return v
}

// Render executes the template for v and writes the minified page to w.
func (r *Renderer) Render(w io.Writer, v View) error {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, templateData{View: v, CSS: r.css, JS: r.js}); err != nil {
		return fmt.Errorf("execute template: %w", err)
	}

	if err := r.min.Minify("text/html", w, &buf); err != nil {
		return fmt.Errorf("minify HTML: %w", err)
	}

	return nil
}
