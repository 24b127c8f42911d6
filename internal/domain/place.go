package domain

import (
	"fmt"
	"strings"
)

// ResolvedPlace is a query pinned to coordinates with a label for display.
type ResolvedPlace struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"displayName"`
}

// ComposeDisplayName joins name, state and country with ", ", skipping
// blank parts, so there is never a leading, trailing or doubled separator.
func ComposeDisplayName(name, state, country string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{name, state, country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// CoordinateLabel is the display name used when coordinates have no
// reverse-geocoding match.
func CoordinateLabel(lat, lon float64) string {
	return fmt.Sprintf("Lat: %.2f, Lon: %.2f", lat, lon)
}
