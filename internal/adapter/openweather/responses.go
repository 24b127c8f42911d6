package openweather

import (
	"time"

	"github.com/couchcryptid/weather-dashboard-service/internal/domain"
)

// OpenWeather API response types.

type errorResponse struct {
	Message string `json:"message"` // "cod" is a number or a string depending on the endpoint
}

type geoCandidate struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}

func (g geoCandidate) toResult() domain.GeocodingResult {
	return domain.GeocodingResult{
		Lat:     g.Lat,
		Lon:     g.Lon,
		Name:    g.Name,
		State:   g.State,
		Country: g.Country,
		Matched: true,
	}
}

type condition struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type oneCallResponse struct {
	Current struct {
		Dt        int64       `json:"dt"`
		Temp      float64     `json:"temp"`
		FeelsLike float64     `json:"feels_like"`
		WindSpeed float64     `json:"wind_speed"`
		Weather   []condition `json:"weather"`
	} `json:"current"`
	Hourly []struct {
		Dt        int64       `json:"dt"`
		Temp      *float64    `json:"temp"`
		FeelsLike *float64    `json:"feels_like"`
		Weather   []condition `json:"weather"`
	} `json:"hourly"`
	Daily []struct {
		Dt   int64 `json:"dt"`
		Temp *struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"temp"`
		Weather []condition `json:"weather"`
	} `json:"daily"`
}

// toForecast maps the response, dropping incomplete hourly and daily points
// and keeping at most domain.MaxHourlyPoints and domain.MaxDailyPoints.
func (r oneCallResponse) toForecast() domain.Forecast {
	f := domain.Forecast{
		Current: domain.CurrentConditions{
			Time:        unixUTC(r.Current.Dt),
			Temperature: r.Current.Temp,
			FeelsLike:   r.Current.FeelsLike,
			WindSpeed:   r.Current.WindSpeed,
		},
		Hourly: make([]domain.HourlyPoint, 0, min(len(r.Hourly), domain.MaxHourlyPoints)),
		Daily:  make([]domain.DailyPoint, 0, min(len(r.Daily), domain.MaxDailyPoints)),
	}
	if len(r.Current.Weather) > 0 {
		f.Current.Description = r.Current.Weather[0].Description
		f.Current.IconCode = r.Current.Weather[0].Icon
	}

	for _, h := range r.Hourly {
		if len(f.Hourly) == domain.MaxHourlyPoints {
			break
		}
		if h.Temp == nil || h.FeelsLike == nil || len(h.Weather) == 0 {
			continue
		}
		f.Hourly = append(f.Hourly, domain.HourlyPoint{
			Time:        unixUTC(h.Dt),
			Temperature: *h.Temp,
			FeelsLike:   *h.FeelsLike,
			Description: h.Weather[0].Description,
			IconCode:    h.Weather[0].Icon,
		})
	}

	for _, d := range r.Daily {
		if len(f.Daily) == domain.MaxDailyPoints {
			break
		}
		if d.Temp == nil || len(d.Weather) == 0 {
			continue
		}
		f.Daily = append(f.Daily, domain.DailyPoint{
			Time:        unixUTC(d.Dt),
			Min:         d.Temp.Min,
			Max:         d.Temp.Max,
			Description: d.Weather[0].Description,
			IconCode:    d.Weather[0].Icon,
		})
	}
	return f
}

type airPollutionResponse struct {
	List []struct {
		Main struct {
			Aqi int `json:"aqi"`
		} `json:"main"`
	} `json:"list"`
}

func unixUTC(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
