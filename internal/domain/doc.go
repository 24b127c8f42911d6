// Package domain models the weather dashboard: what a user asks for, where
// it resolves to, and the forecast snapshot shown for it.
//
// # Data Source
//
// All data comes from OpenWeather. Place names are resolved with the
// Geocoding API (direct and reverse), forecasts with One Call 3.0, and
// air quality with the Air Pollution API.
//
// # OpenWeather Conventions
//
// Units:
//
//	Requests ask for metric units, so temperatures arrive in °C and wind
//	speed in metres per second. Wind is converted to km/h (× 3.6) only when
//	a snapshot is rendered; snapshots store the upstream value.
//
// Timestamps:
//
//	Unix seconds, UTC. Converted to time.Time at the adapter boundary.
//
// Forecast shape:
//
//	One Call returns 48 hourly and 8 daily points. The dashboard keeps the
//	first 24 hourly and 7 daily points ([MaxHourlyPoints], [MaxDailyPoints]).
//	Points without a weather description block are dropped.
//
// Air quality index:
//
//	1 Good | 2 Fair | 3 Moderate | 4 Poor | 5 Very Poor. Anything outside
//	1–5 is treated as absent.
//
// Place labels:
//
//	"{name}, {state}, {country}" with empty parts skipped, e.g. "Paris, FR"
//	or "Paris, Texas, US". Coordinates without a reverse-geocoding match are
//	labelled "Lat: 40.00, Lon: -75.00" (see [CoordinateLabel]).
//
// # Failure Policy
//
// Forward geocoding with no candidates is a [NotFoundError]. Transport and
// HTTP failures are [UpstreamError]s. Rejected input is an
// [InvalidInputError] and never reaches the network. Reverse geocoding and
// air quality lookups degrade instead of failing (see [ResolveByCoords] and
// [LookupAirQuality]).
package domain
