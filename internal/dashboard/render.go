package dashboard

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/couchcryptid/weather-dashboard-service/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is what the view is currently showing.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Source records how the query behind a view was chosen.
type Source string

const (
	SourceQuery    Source = "query"    // explicit URL or form input
	SourceCache    Source = "cache"    // fresh cached snapshot at bootstrap
	SourceAmbient  Source = "ambient"  // IP-based locator
	SourceDefault  Source = "default"  // no ambient locator configured
	SourceFallback Source = "fallback" // ambient lookup or its run failed
	SourceRefresh  Source = "refresh"  // background refresh of the last query
)

const (
	loadingLabel    = "Loading..."
	notFoundLabel   = "Location not found"
	errorLabel      = "Error loading data"
	unavailable     = "N/A"
	noConditions    = "Data unavailable"
	noHourly        = "Hourly forecast data unavailable."
	noDaily         = "Weekly forecast data unavailable."
	maxErrorRunes   = 200
	smallIconSuffix = "@2x.png"
	largeIconSuffix = "@4x.png"
)

// View is the rendered dashboard: everything the page needs, as display strings.
type View struct {
	Generation uint64                `json:"generation"`
	Status     Status                `json:"status"`
	Source     Source                `json:"source,omitempty"`
	RunID      string                `json:"runId,omitempty"`
	Location   string                `json:"location"`
	Place      *domain.ResolvedPlace `json:"place,omitempty"`
	Current    CurrentView           `json:"current"`
	Hourly     []HourlyView          `json:"hourly"`
	HourlyNote string                `json:"hourlyNote,omitempty"`
	Daily      []DailyView           `json:"daily"`
	DailyNote  string                `json:"dailyNote,omitempty"`
	Error      *ErrorView            `json:"error,omitempty"`
	FetchedAt  *time.Time            `json:"fetchedAt,omitempty"`
	Stale      bool                  `json:"stale,omitempty"`
}

// CurrentView is the "now" panel.
type CurrentView struct {
	Temperature string `json:"temperature"`
	Condition   string `json:"condition"`
	Wind        string `json:"wind"`
	IconURL     string `json:"iconUrl,omitempty"`
	IconAlt     string `json:"iconAlt,omitempty"`
	AirQuality  string `json:"airQuality"`
}

// HourlyView is one slide of the hourly strip.
type HourlyView struct {
	Hour        string `json:"hour"`
	Temperature string `json:"temperature"`
	FeelsLike   string `json:"feelsLike"`
	IconURL     string `json:"iconUrl,omitempty"`
	Description string `json:"description"`
}

// DailyView is one row of the weekly table.
type DailyView struct {
	Day         string `json:"day"`
	IconURL     string `json:"iconUrl,omitempty"`
	Description string `json:"description"`
	High        string `json:"high"`
	Low         string `json:"low"`
}

// ErrorView describes a failed run for the user.
type ErrorView struct {
	Kind    string `json:"kind"` // invalid_input, not_found, upstream, internal
	Message string `json:"message"`
}

// Renderer turns snapshots and failures into views.
type Renderer struct {
	IconBaseURL string
	Location    *time.Location // zone for hour and weekday labels; UTC when nil
}

var titleCaser = cases.Title(language.English, cases.NoLower)

// Render builds a ready view for a resolved place.
func (r Renderer) Render(place domain.ResolvedPlace, snap domain.WeatherSnapshot) View {
	v := View{
		Status:   StatusReady,
		Location: place.DisplayName,
		Place:    &place,
		Current:  r.current(snap.Current, snap.Aqi),
		Hourly:   make([]HourlyView, 0, len(snap.Hourly)),
		Daily:    make([]DailyView, 0, len(snap.Daily)),
	}
	if v.Location == "" {
		v.Location = unavailable
	}

	for _, h := range snap.Hourly {
		v.Hourly = append(v.Hourly, HourlyView{
			Hour:        r.in(h.Time).Format("3PM"),
			Temperature: celsius(h.Temperature),
			FeelsLike:   "Feels: " + celsius(h.FeelsLike),
			IconURL:     r.iconURL(h.IconCode, smallIconSuffix),
			Description: h.Description,
		})
	}
	if len(v.Hourly) == 0 {
		v.HourlyNote = noHourly
	}

	for _, d := range snap.Daily {
		v.Daily = append(v.Daily, DailyView{
			Day:         r.in(d.Time).Weekday().String(),
			IconURL:     r.iconURL(d.IconCode, smallIconSuffix),
			Description: d.Description,
			High:        celsius(d.Max),
			Low:         celsius(d.Min),
		})
	}
	if len(v.Daily) == 0 {
		v.DailyNote = noDaily
	}
	return v
}

func (r Renderer) current(c domain.CurrentConditions, aqi *domain.AqiLevel) CurrentView {
	cv := CurrentView{AirQuality: unavailable}
	if aqi != nil {
		cv.AirQuality = aqi.String()
	}
	if c.Description == "" {
		cv.Temperature = unavailable
		cv.Condition = noConditions
		cv.Wind = unavailable
		return cv
	}
	cv.Temperature = celsius(c.Temperature)
	cv.Condition = titleCaser.String(c.Description)
	cv.Wind = fmt.Sprintf("%d km/h", int(math.Round(c.WindSpeed*domain.MetersPerSecondToKmh)))
	if c.IconCode != "" {
		cv.IconURL = r.iconURL(c.IconCode, largeIconSuffix)
		cv.IconAlt = c.Description
	}
	return cv
}

// Loading is the view shown the moment a query is submitted.
func Loading() View {
	return View{
		Status:     StatusLoading,
		Location:   loadingLabel,
		Hourly:     []HourlyView{},
		HourlyNote: loadingLabel,
		Daily:      []DailyView{},
		DailyNote:  loadingLabel,
	}
}

// Failed is the explicit error view for a failed run.
func Failed(err error) View {
	ev := describe(err)
	label := errorLabel
	if ev.Kind == "not_found" {
		label = notFoundLabel
	}
	return View{
		Status:     StatusError,
		Location:   label,
		Current:    CurrentView{Temperature: unavailable, Condition: noConditions, Wind: unavailable, AirQuality: unavailable},
		Hourly:     []HourlyView{},
		HourlyNote: ev.Message,
		Daily:      []DailyView{},
		DailyNote:  ev.Message,
		Error:      &ev,
	}
}

func describe(err error) ErrorView {
	var (
		notFound *domain.NotFoundError
		invalid  *domain.InvalidInputError
		upstream *domain.UpstreamError
	)
	switch {
	case errors.As(err, &notFound):
		return ErrorView{Kind: "not_found", Message: "Location not found. Please try again."}
	case errors.As(err, &invalid):
		return ErrorView{Kind: "invalid_input", Message: truncate("Please enter a valid location: " + invalid.Error())}
	case errors.As(err, &upstream):
		return ErrorView{Kind: "upstream", Message: truncate(fmt.Sprintf("Failed to fetch weather data. %s failed: %s", opLabel(upstream.Op), upstream.Reason()))}
	default:
		return ErrorView{Kind: "internal", Message: truncate("Failed to fetch weather data. " + err.Error())}
	}
}

func opLabel(op string) string {
	switch op {
	case "geocode", "reverse_geocode":
		return "Geocoding"
	case "weather":
		return "Weather data fetch"
	case "air_quality":
		return "Air quality fetch"
	default:
		return "Request"
	}
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxErrorRunes {
		return s
	}
	return string([]rune(s)[:maxErrorRunes])
}

func celsius(t float64) string {
	return fmt.Sprintf("%d°C", int(math.Round(t)))
}

func (r Renderer) iconURL(code, suffix string) string {
	if code == "" {
		return ""
	}
	return strings.TrimRight(r.IconBaseURL, "/") + "/" + code + suffix
}

func (r Renderer) in(t time.Time) time.Time {
	if r.Location == nil {
		return t.UTC()
	}
	return t.In(r.Location)
}
