package geo

// MaxLatitude is the northern limit of the Web Mercator projection used by tile layers.
const MaxLatitude = 85.05112878

// ClampLatitude limits lat to the range drawable on a Web Mercator map.
func ClampLatitude(lat float64) float64 {
	if lat > MaxLatitude {
		return MaxLatitude
	} else if lat < -MaxLatitude {
		return -MaxLatitude
	}

	return lat
}

// ValidLatLon reports whether the pair is a usable map center.
func ValidLatLon(lat, lon float64) bool {
	return lat >= -MaxLatitude && lat <= MaxLatitude && lon >= -180 && lon <= 180
}
