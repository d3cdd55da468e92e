// Package geo handles the earthquake feed GeoJSON structures and coordinate checks.
package geo

import "github.com/paulmach/orb"

// FeatureCollection represents the earthquake feed payload.
// It follows the standard GeoJSON structure.
type FeatureCollection struct {
	Metadata *Metadata `json:"metadata,omitempty"`
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Metadata is the optional feed header published by USGS summary feeds.
type Metadata struct {
	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`
	Generated int64  `json:"generated,omitempty"` // epoch milliseconds
	Count     int    `json:"count,omitempty"`
}

// Feature represents a single earthquake event.
type Feature struct {
	ID         string     `json:"id,omitempty"`
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Geometry   Geometry   `json:"geometry"`
}

// Properties holds the event attributes used for rendering.
// Absent or null values stay nil so callers can tell them from zero.
type Properties struct {
	Place *string  `json:"place"`
	Time  *int64   `json:"time"` // epoch milliseconds
	Mag   *float64 `json:"mag"`
}

// Geometry represents a Point geometry of an event.
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"` // [Lon, Lat, Depth]
}

// Location returns the event position and depth in kilometers.
// ok is false when the geometry has fewer than two coordinates.
func (g Geometry) Location() (p orb.Point, depth float64, ok bool) {
	if len(g.Coordinates) < 2 {
		return orb.Point{}, 0, false
	}
	if len(g.Coordinates) > 2 {
		depth = g.Coordinates[2]
	}

	return orb.Point{g.Coordinates[0], ClampLatitude(g.Coordinates[1])}, depth, true
}
