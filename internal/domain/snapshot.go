package domain

import "time"

const (
	// MaxHourlyPoints is how many hourly points a snapshot keeps.
	MaxHourlyPoints = 24
	// MaxDailyPoints is how many daily points a snapshot keeps.
	MaxDailyPoints = 7

	// MetersPerSecondToKmh converts upstream wind speed for display: 1 m/s = 3.6 km/h.
	MetersPerSecondToKmh = 3.6
)

// CurrentConditions is the "now" block of a forecast.
type CurrentConditions struct {
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"` // °C
	FeelsLike   float64   `json:"feelsLike"`   // °C
	WindSpeed   float64   `json:"windSpeed"`   // m/s
	Description string    `json:"description"`
	IconCode    string    `json:"iconCode"`
}

// HourlyPoint is one hour of the next-24-hours strip.
type HourlyPoint struct {
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feelsLike"`
	Description string    `json:"description"`
	IconCode    string    `json:"iconCode"`
}

// DailyPoint is one day of the weekly table.
type DailyPoint struct {
	Time        time.Time `json:"time"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Description string    `json:"description"`
	IconCode    string    `json:"iconCode"`
}

// Forecast is what the weather endpoint yields before air quality is attached.
type Forecast struct {
	Current CurrentConditions `json:"current"`
	Hourly  []HourlyPoint     `json:"hourly"`
	Daily   []DailyPoint      `json:"daily"`
}

// AqiLevel is the OpenWeather air quality index, 1 (Good) to 5 (Very Poor).
type AqiLevel int

var aqiLabels = [...]string{"", "Good", "Fair", "Moderate", "Poor", "Very Poor"}

// Valid reports whether the level is within 1–5.
func (a AqiLevel) Valid() bool {
	return a >= 1 && a <= 5
}

func (a AqiLevel) String() string {
	if !a.Valid() {
		return "Unknown"
	}
	return aqiLabels[a]
}

// WeatherSnapshot is everything the dashboard shows for one place.
type WeatherSnapshot struct {
	Current CurrentConditions `json:"current"`
	Hourly  []HourlyPoint     `json:"hourly"`
	Daily   []DailyPoint      `json:"daily"`
	Aqi     *AqiLevel         `json:"aqi"`
}

// NewSnapshot combines a forecast with an optional air quality level,
// enforcing the hourly and daily point limits.
func NewSnapshot(f Forecast, aqi *AqiLevel) WeatherSnapshot {
	hourly := f.Hourly
	if len(hourly) > MaxHourlyPoints {
		hourly = hourly[:MaxHourlyPoints]
	}
	daily := f.Daily
	if len(daily) > MaxDailyPoints {
		daily = daily[:MaxDailyPoints]
	}
	return WeatherSnapshot{
		Current: f.Current,
		Hourly:  hourly,
		Daily:   daily,
		Aqi:     aqi,
	}
}

// CacheRecordVersion is the schema version written by this build. Records
// with any other version are discarded on read.
const CacheRecordVersion = 1

// CacheRecord is the persisted last successful result.
type CacheRecord struct {
	Version     int             `json:"version"`
	Place       ResolvedPlace   `json:"place"`
	Snapshot    WeatherSnapshot `json:"snapshot"`
	FetchedAtMs int64           `json:"fetchedAtMs"`
}

// FetchedAt returns the record timestamp as a time.Time.
func (r CacheRecord) FetchedAt() time.Time {
	return time.UnixMilli(r.FetchedAtMs).UTC()
}
