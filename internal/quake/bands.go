// Package quake maps earthquake features to styled map markers and builds
// the magnitude legend.
package quake

import (
	"math"
	"strconv"

	"github.com/woozymasta/quakemap/internal/config"
)

// Band is one magnitude range with an inclusive upper bound.
type Band struct {
	Upper float64
	Color string
}

// Bands is an ordered step table evaluated from the lowest band up.
// The last band is open-ended (Upper is +Inf).
type Bands []Band

// NewBands converts configured bands into a step table.
func NewBands(cfg []config.Band) Bands {
	bands := make(Bands, 0, len(cfg))
	for _, b := range cfg {
		upper := math.Inf(1)
		if b.Max != nil {
			upper = *b.Max
		}
		bands = append(bands, Band{Upper: upper, Color: b.Color})
	}

	return bands
}

// Color returns the color of the first band whose upper bound is >= m.
func (bs Bands) Color(m float64) string {
	for _, b := range bs {
		if m <= b.Upper {
			return b.Color
		}
	}
	if len(bs) == 0 {
		return ""
	}

	// NaN compares false against every bound
	return bs[len(bs)-1].Color
}

// Index returns the position of the band m falls into.
func (bs Bands) Index(m float64) int {
	for i, b := range bs {
		if m <= b.Upper {
			return i
		}
	}

	return len(bs) - 1
}

// LegendEntry is one display row of the legend.
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// Legend lists the bands in ascending order. Each label spans from the
// previous band's bound (0 for the first) to its own; the open-ended
// last band is labeled "N+".
func Legend(bs Bands) []LegendEntry {
	entries := make([]LegendEntry, 0, len(bs))

	lower := 0.0
	for _, b := range bs {
		label := formatMag(lower) + "+"
		if !math.IsInf(b.Upper, 1) {
			label = formatMag(lower) + "–" + formatMag(b.Upper)
			lower = b.Upper
		}
		entries = append(entries, LegendEntry{Label: label, Color: b.Color})
	}

	return entries
}

func formatMag(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64)
}
