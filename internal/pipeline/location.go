package pipeline

import (
	"fmt"
	"strings"
)

// ParseLocation splits a "lat,lon" pair into its coordinate strings.
// Malformed or absent content is tolerated, never rejected: any missing part
// defaults to "0.0".
func ParseLocation(raw string) (lat, lon string) {
	lat, lon = "0.0", "0.0"
	i := strings.IndexByte(raw, ',')
	if i < 0 {
		return
	}
	if v := strings.TrimSpace(raw[:i]); v != "" {
		lat = v
	}
	if v := strings.TrimSpace(raw[i+1:]); v != "" {
		lon = v
	}
	return
}

// MapLink builds a location-lookup link from stored coordinates.
func MapLink(lat, lon string) string {
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%s,%s", lat, lon)
}
