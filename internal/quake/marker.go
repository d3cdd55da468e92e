package quake

import (
	"html"
	"math"
	"strings"
	"time"

	"github.com/woozymasta/quakemap/internal/config"
	"github.com/woozymasta/quakemap/internal/geo"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

const unknown = "unknown"

// Marker is the styled circle drawn for one earthquake.
type Marker struct {
	Time      time.Time
	ID        string
	Place     string
	Color     string
	Popup     string
	Point     orb.Point // [Lon, Lat]
	Depth     float64
	Magnitude float64
	Radius    float64
	HasMag    bool
}

// Stats summarizes one mapping pass.
type Stats struct {
	Features int
	Markers  int
	Skipped  int
}

// Mapper turns feed features into markers.
type Mapper struct {
	loc   *time.Location
	bands Bands
	style config.Marker
}

// NewMapper creates a mapper from the band table, marker style and time zone of cfg.
func NewMapper(cfg *config.Config) *Mapper {
	return &Mapper{
		bands: NewBands(cfg.Bands),
		style: cfg.Marker,
		loc:   cfg.Location(),
	}
}

// Bands returns the step table the mapper colors with.
func (m *Mapper) Bands() Bands { return m.bands }

// Radius is RadiusScale × magnitude. Negative and NaN magnitudes give 0.
func (m *Mapper) Radius(mag float64) float64 {
	if mag < 0 || math.IsNaN(mag) {
		return 0
	}

	return m.style.RadiusScale * mag
}

// Popup describes the place, time and magnitude of f.
// Missing properties read "unknown" instead of failing.
func (m *Mapper) Popup(f geo.Feature) string {
	place := unknown
	if f.Properties.Place != nil && *f.Properties.Place != "" {
		place = *f.Properties.Place
	}

	when := unknown
	if f.Properties.Time != nil {
		when = m.FormatTime(time.UnixMilli(*f.Properties.Time))
	}

	mag := unknown
	if f.Properties.Mag != nil {
		mag = formatMag(*f.Properties.Mag)
	}

	var b strings.Builder
	b.WriteString("<h3>Location: ")
	b.WriteString(html.EscapeString(place))
	b.WriteString("</h3><hr><p>Time: ")
	b.WriteString(html.EscapeString(when))
	b.WriteString("</p><hr><p>Magnitude: ")
	b.WriteString(mag)
	b.WriteString("</p>")

	return b.String()
}

// FormatTime renders t for display in the configured zone.
func (m *Mapper) FormatTime(t time.Time) string {
	return t.In(m.loc).Format(time.RFC1123)
}

// Map builds the marker for f. ok is false when f has no usable position.
func (m *Mapper) Map(f geo.Feature) (Marker, bool) {
	point, depth, ok := f.Geometry.Location()
	if !ok {
		return Marker{}, false
	}

	mk := Marker{
		ID:    f.ID,
		Point: point,
		Depth: depth,
		Popup: m.Popup(f),
	}

	if f.Properties.Mag != nil {
		mk.Magnitude = *f.Properties.Mag
		mk.HasMag = true
	}
	if f.Properties.Place != nil {
		mk.Place = *f.Properties.Place
	}
	if f.Properties.Time != nil {
		mk.Time = time.UnixMilli(*f.Properties.Time).In(m.loc)
	}

	mk.Radius = m.Radius(mk.Magnitude)
	mk.Color = m.bands.Color(mk.Magnitude)

	return mk, true
}

// Markers maps every feature of fc. Features without a position are skipped
// and counted; each other feature yields exactly one marker.
func (m *Mapper) Markers(fc *geo.FeatureCollection) ([]Marker, Stats) {
	if fc == nil {
		return []Marker{}, Stats{}
	}

	stats := Stats{Features: len(fc.Features)}
	markers := make([]Marker, 0, len(fc.Features))

	for _, f := range fc.Features {
		mk, ok := m.Map(f)
		if !ok {
			stats.Skipped++
			log.Debug().
				Str("id", f.ID).
				Int("coordinates", len(f.Geometry.Coordinates)).
				Msg("Feature skipped: no position")
			continue
		}
		markers = append(markers, mk)
	}
	stats.Markers = len(markers)

	return markers, stats
}

// Collection encodes markers as GeoJSON points carrying their style in the
// properties, ready for a Leaflet GeoJSON layer.
func (m *Mapper) Collection(markers []Marker) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, mk := range markers {
		f := geojson.NewFeature(mk.Point)
		if mk.ID != "" {
			f.ID = mk.ID
		}

		f.Properties["place"] = mk.Place
		f.Properties["depth"] = mk.Depth
		f.Properties["radius"] = mk.Radius
		f.Properties["fillColor"] = mk.Color
		f.Properties["weight"] = m.style.Weight
		f.Properties["fillOpacity"] = m.style.FillOpacity
		f.Properties["popup"] = mk.Popup
		if mk.HasMag {
			f.Properties["mag"] = mk.Magnitude
		}
		if !mk.Time.IsZero() {
			f.Properties["time"] = mk.Time.UnixMilli()
		}

		fc.Append(f)
	}

	return fc
}
