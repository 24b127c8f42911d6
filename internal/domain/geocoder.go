package domain

import "context"

// GeocodingResult is the first candidate returned by a geocoding provider.
// Matched is set whenever a candidate came back, even one with no name.
type GeocodingResult struct {
	Lat     float64
	Lon     float64
	Name    string
	State   string
	Country string // ISO 3166 alpha-2
	Matched bool
}

// Found reports whether the provider matched anything.
func (r GeocodingResult) Found() bool {
	return r.Matched
}

// Geocoder resolves place names to coordinates and back. A lookup with no
// match returns a zero GeocodingResult and a nil error.
type Geocoder interface {
	// ForwardGeocode converts free text like "London, GB" to coordinates.
	ForwardGeocode(ctx context.Context, query string) (GeocodingResult, error)

	// ReverseGeocode converts coordinates to place details.
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}

// WeatherProvider fetches current, hourly and daily conditions.
type WeatherProvider interface {
	FetchWeather(ctx context.Context, lat, lon float64) (Forecast, error)
}

// AirQualityProvider fetches the air quality index for a coordinate pair.
type AirQualityProvider interface {
	FetchAirQuality(ctx context.Context, lat, lon float64) (AqiLevel, error)
}
