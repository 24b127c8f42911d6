package domain

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ResolveByName forward-geocodes free text and keeps the first candidate.
// Zero candidates is a *NotFoundError; any provider failure is an *UpstreamError.
// A candidate without a name is labeled by its coordinates.
func ResolveByName(ctx context.Context, geocoder Geocoder, text string) (ResolvedPlace, error) {
	text = strings.TrimSpace(text)
	result, err := geocoder.ForwardGeocode(ctx, text)
	if err != nil {
		return ResolvedPlace{}, asUpstream("geocode", err)
	}
	if !result.Found() {
		return ResolvedPlace{}, &NotFoundError{Query: text}
	}
	place := ResolvedPlace{
		Lat:         result.Lat,
		Lon:         result.Lon,
		DisplayName: ComposeDisplayName(result.Name, result.State, result.Country),
	}
	if place.DisplayName == "" {
		place.DisplayName = CoordinateLabel(result.Lat, result.Lon)
	}
	return place, nil
}

// ResolveByCoords labels known coordinates via reverse geocoding. It never
// fails: errors and empty results fall back to CoordinateLabel. The returned
// coordinates are always the ones passed in.
func ResolveByCoords(ctx context.Context, geocoder Geocoder, lat, lon float64, logger *slog.Logger) ResolvedPlace {
	place := ResolvedPlace{Lat: lat, Lon: lon, DisplayName: CoordinateLabel(lat, lon)}
	if geocoder == nil {
		return place
	}

	result, err := geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		logger.Warn("reverse geocoding failed, using coordinate label",
			"lat", lat,
			"lon", lon,
			"error", err,
		)
		return place
	}
	if !result.Found() {
		logger.Debug("reverse geocoding returned no match", "lat", lat, "lon", lon)
		return place
	}

	if name := ComposeDisplayName(result.Name, result.State, result.Country); name != "" {
		place.DisplayName = name
	}
	return place
}

// LookupAirQuality returns the air quality level or nil. Provider errors and
// out-of-range indices are logged and treated as absent.
func LookupAirQuality(ctx context.Context, provider AirQualityProvider, lat, lon float64, logger *slog.Logger) *AqiLevel {
	if provider == nil {
		return nil
	}

	level, err := provider.FetchAirQuality(ctx, lat, lon)
	if err != nil {
		logger.Warn("air quality lookup failed, continuing without it",
			"lat", lat,
			"lon", lon,
			"error", err,
		)
		return nil
	}
	if !level.Valid() {
		logger.Warn("air quality index out of range", "aqi", int(level), "lat", lat, "lon", lon)
		return nil
	}
	return &level
}

func asUpstream(op string, err error) error {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}
