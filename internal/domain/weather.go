package domain

import "context"

// FetchForecast calls the weather provider and normalizes any failure to
// an *UpstreamError.
func FetchForecast(ctx context.Context, provider WeatherProvider, lat, lon float64) (Forecast, error) {
	forecast, err := provider.FetchWeather(ctx, lat, lon)
	if err != nil {
		return Forecast{}, asUpstream("weather", err)
	}
	return forecast, nil
}
