// Package config handles configuration loading and shared data structures.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/woozymasta/quakemap/internal/geo"

	"gopkg.in/yaml.v3"
)

// DefaultFeedURL is the USGS summary feed of all events from the past week.
const DefaultFeedURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_week.geojson"

const defaultAttribution = `Map data &copy; <a href="https://www.openstreetmap.org/">OpenStreetMap</a> contributors, ` +
	`<a href="https://creativecommons.org/licenses/by-sa/2.0/">CC-BY-SA</a>, Imagery © <a href="https://www.mapbox.com/">Mapbox</a>`

// Config represents the root configuration file structure.
// It is built once at startup and must be treated as read-only afterwards.
type Config struct {
	Title       string        `yaml:"title"`
	FeedURL     string        `yaml:"feed_url"`
	FeedTimeout time.Duration `yaml:"feed_timeout"`
	TimeZone    string        `yaml:"time_zone"`

	View       View        `yaml:"view"`
	Tiles      Tiles       `yaml:"tiles"`
	BaseLayers []BaseLayer `yaml:"base_layers"`
	Overlay    string      `yaml:"overlay"`
	Legend     Legend      `yaml:"legend"`
	Bands      []Band      `yaml:"bands"`
	Marker     Marker      `yaml:"marker"`
}

// View is the initial map viewport.
type View struct {
	Center [2]float64 `yaml:"center"` // [Lat, Lon]
	Zoom   int        `yaml:"zoom"`
}

// Tiles configures the upstream tile provider behind the tile proxy.
type Tiles struct {
	// URL is a template with {id}, {z}, {x}, {y} and {accessToken} placeholders.
	URL         string        `yaml:"url"`
	Attribution string        `yaml:"attribution"`
	AccessToken string        `yaml:"access_token,omitempty"`
	CacheDir    string        `yaml:"cache_dir"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxZoom     int           `yaml:"max_zoom"`
	Quality     float32       `yaml:"quality"`
}

// BaseLayer is one selectable map theme.
type BaseLayer struct {
	Name    string `yaml:"name"`
	Key     string `yaml:"key"` // path segment used by the tile proxy
	ID      string `yaml:"id"`  // provider style id substituted into {id}
	Default bool   `yaml:"default,omitempty"`
}

// Legend configures the magnitude legend control.
type Legend struct {
	Title    string `yaml:"title"`
	Position string `yaml:"position"`
}

// Band is one magnitude range. A nil Max marks the open-ended last band.
type Band struct {
	Max   *float64 `yaml:"max,omitempty"`
	Color string   `yaml:"color"`
}

// Marker holds circle marker styling.
type Marker struct {
	RadiusScale float64 `yaml:"radius_scale"`
	Weight      float64 `yaml:"weight"`
	FillOpacity float64 `yaml:"fill_opacity"`
}

func bound(v float64) *float64 { return &v }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Title:       "Earthquakes in the past week",
		FeedURL:     DefaultFeedURL,
		FeedTimeout: 15 * time.Second,
		TimeZone:    "UTC",
		View: View{
			Center: [2]float64{37.09, -95.71},
			Zoom:   5,
		},
		Tiles: Tiles{
			URL:         "https://api.mapbox.com/styles/v1/mapbox/{id}/tiles/256/{z}/{x}/{y}?access_token={accessToken}",
			Attribution: defaultAttribution,
			CacheDir:    "cache/tiles",
			CacheTTL:    7 * 24 * time.Hour,
			Timeout:     15 * time.Second,
			MaxZoom:     17,
			Quality:     80,
		},
		BaseLayers: []BaseLayer{
			{Name: "Light Map", Key: "light", ID: "light-v10", Default: true},
			{Name: "Dark Map", Key: "dark", ID: "dark-v10"},
			{Name: "Street Map", Key: "streets", ID: "streets-v11"},
		},
		Overlay: "Earthquakes",
		Legend: Legend{
			Title:    "Magnitudes",
			Position: "bottomright",
		},
		Bands: []Band{
			{Max: bound(1), Color: "#25E500"},
			{Max: bound(2), Color: "#6FDD00"},
			{Max: bound(3), Color: "#B4D500"},
			{Max: bound(4), Color: "#CEA800"},
			{Max: bound(5), Color: "#C65E00"},
			{Color: "#BF1900"},
		},
		Marker: Marker{
			RadiusScale: 5,
			Weight:      0.2,
			FillOpacity: 0.85,
		},
	}
}

// Load reads the YAML configuration file from the specified path on top of
// the defaults and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the renderer cannot work with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.FeedURL)
	if c.FeedURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("feed_url must be an absolute http(s) URL, got %q", c.FeedURL)
	}
	if c.FeedTimeout <= 0 {
		return errors.New("feed_timeout must be positive")
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("time_zone: %w", err)
	}

	if !geo.ValidLatLon(c.View.Center[0], c.View.Center[1]) {
		return fmt.Errorf("view.center %v is out of range", c.View.Center)
	}
	if c.Tiles.MaxZoom <= 0 {
		return errors.New("tiles.max_zoom must be positive")
	}
	if c.View.Zoom < 0 || c.View.Zoom > c.Tiles.MaxZoom {
		return fmt.Errorf("view.zoom must be within 0..%d", c.Tiles.MaxZoom)
	}
	if !strings.Contains(c.Tiles.URL, "{z}") || !strings.Contains(c.Tiles.URL, "{x}") || !strings.Contains(c.Tiles.URL, "{y}") {
		return errors.New("tiles.url must contain {z}, {x} and {y}")
	}
	if c.Tiles.Quality <= 0 || c.Tiles.Quality > 100 {
		return errors.New("tiles.quality must be within 1..100")
	}

	if err := c.validateLayers(); err != nil {
		return err
	}
	if err := c.validateBands(); err != nil {
		return err
	}

	if c.Marker.RadiusScale <= 0 {
		return errors.New("marker.radius_scale must be positive")
	}

	return nil
}

func (c *Config) validateLayers() error {
	if len(c.BaseLayers) == 0 {
		return errors.New("at least one base layer is required")
	}

	seen := make(map[string]bool, len(c.BaseLayers))
	defaults := 0
	for _, l := range c.BaseLayers {
		if l.Name == "" || l.Key == "" || l.ID == "" {
			return errors.New("base layers need name, key and id")
		}
		if strings.ContainsAny(l.Key, "/.") {
			return fmt.Errorf("base layer key %q must be a single path segment", l.Key)
		}
		if seen[l.Key] {
			return fmt.Errorf("duplicate base layer key %q", l.Key)
		}
		seen[l.Key] = true
		if l.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return errors.New("only one base layer may be marked default")
	}
	if c.Overlay == "" {
		return errors.New("overlay name is required")
	}

	return nil
}

func (c *Config) validateBands() error {
	if len(c.Bands) == 0 {
		return errors.New("at least one magnitude band is required")
	}

	last := len(c.Bands) - 1
	for i, b := range c.Bands {
		if b.Color == "" {
			return fmt.Errorf("band %d has no color", i)
		}
		if i == last {
			if b.Max != nil {
				return errors.New("last band must be open-ended (no max)")
			}
			continue
		}
		if b.Max == nil {
			return fmt.Errorf("band %d: only the last band may omit max", i)
		}
		if i > 0 && *b.Max <= *c.Bands[i-1].Max {
			return fmt.Errorf("band %d: max values must be strictly ascending", i)
		}
	}

	return nil
}

// DefaultLayer returns the base layer shown on page load.
func (c *Config) DefaultLayer() BaseLayer {
	for _, l := range c.BaseLayers {
		if l.Default {
			return l
		}
	}

	return c.BaseLayers[0]
}

// Layer looks up a base layer by its proxy key.
func (c *Config) Layer(key string) (BaseLayer, bool) {
	for _, l := range c.BaseLayers {
		if l.Key == key {
			return l, true
		}
	}

	return BaseLayer{}, false
}

// Location returns the zone used for popup timestamps.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}

	return loc
}
