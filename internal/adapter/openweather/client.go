// Package openweather implements the domain geocoding, weather, and air
// quality ports against the OpenWeather HTTP APIs.
package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/weather-dashboard-service/internal/domain"
	"github.com/couchcryptid/weather-dashboard-service/internal/observability"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

// DefaultBaseURL serves every endpoint the client uses.
const DefaultBaseURL = "https://api.openweathermap.org"

const (
	endpointGeocode    = "geocode"
	endpointReverse    = "reverse_geocode"
	endpointWeather    = "weather"
	endpointAirQuality = "air_quality"

	pathDirect       = "/geo/1.0/direct"
	pathReverse      = "/geo/1.0/reverse"
	pathOneCall      = "/data/3.0/onecall"
	pathAirPollution = "/data/2.5/air_pollution"
)

// Client implements domain.Geocoder, domain.WeatherProvider, and
// domain.AirQualityProvider. Each endpoint has its own circuit breaker so a
// failing air quality API cannot block forecasts.
type Client struct {
	apiKey   string
	http     *resty.Client
	breakers map[string]*gobreaker.CircuitBreaker
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewClient creates an OpenWeather client. Every request is bounded by timeout.
func NewClient(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "weather-dashboard-service")

	return &Client{
		apiKey:   apiKey,
		http:     httpClient,
		breakers: newBreakers(logger),
		metrics:  metrics,
		logger:   logger,
	}
}

func newBreakers(logger *slog.Logger) map[string]*gobreaker.CircuitBreaker {
	breakers := make(map[string]*gobreaker.CircuitBreaker, 4)
	for _, name := range []string{endpointGeocode, endpointReverse, endpointWeather, endpointAirQuality} {
		breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openweather-" + name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return breakers
}

// ForwardGeocode resolves free text to the first matching place.
func (c *Client) ForwardGeocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	var candidates []geoCandidate
	err := c.get(ctx, endpointGeocode, pathDirect, map[string]string{
		"q":     query,
		"limit": "1",
	}, &candidates)
	if err != nil {
		return domain.GeocodingResult{}, err
	}
	return c.firstCandidate(endpointGeocode, candidates), nil
}

// ReverseGeocode labels a coordinate pair with the nearest named place.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	var candidates []geoCandidate
	err := c.get(ctx, endpointReverse, pathReverse, map[string]string{
		"lat":   formatCoord(lat),
		"lon":   formatCoord(lon),
		"limit": "1",
	}, &candidates)
	if err != nil {
		return domain.GeocodingResult{}, err
	}
	return c.firstCandidate(endpointReverse, candidates), nil
}

func (c *Client) firstCandidate(endpoint string, candidates []geoCandidate) domain.GeocodingResult {
	if len(candidates) == 0 {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "empty").Inc()
		return domain.GeocodingResult{}
	}
	c.metrics.UpstreamRequests.WithLabelValues(endpoint, "success").Inc()
	return candidates[0].toResult()
}

// FetchWeather requests One Call data in metric units without the minutely
// and alert blocks.
func (c *Client) FetchWeather(ctx context.Context, lat, lon float64) (domain.Forecast, error) {
	var resp oneCallResponse
	err := c.get(ctx, endpointWeather, pathOneCall, map[string]string{
		"lat":     formatCoord(lat),
		"lon":     formatCoord(lon),
		"units":   "metric",
		"exclude": "minutely,alerts",
	}, &resp)
	if err != nil {
		return domain.Forecast{}, err
	}
	c.metrics.UpstreamRequests.WithLabelValues(endpointWeather, "success").Inc()
	return resp.toForecast(), nil
}

// FetchAirQuality returns the index of the first air pollution data point.
func (c *Client) FetchAirQuality(ctx context.Context, lat, lon float64) (domain.AqiLevel, error) {
	var resp airPollutionResponse
	err := c.get(ctx, endpointAirQuality, pathAirPollution, map[string]string{
		"lat": formatCoord(lat),
		"lon": formatCoord(lon),
	}, &resp)
	if err != nil {
		return 0, err
	}
	if len(resp.List) == 0 {
		c.metrics.UpstreamRequests.WithLabelValues(endpointAirQuality, "empty").Inc()
		return 0, errors.New("air quality response has no data points")
	}
	c.metrics.UpstreamRequests.WithLabelValues(endpointAirQuality, "success").Inc()
	return domain.AqiLevel(resp.List[0].Main.Aqi), nil
}

// get performs one GET through the endpoint's circuit breaker and decodes a
// successful body into out. Failures are returned as *domain.UpstreamError.
// Transport errors, 429 and 5xx count against the breaker; other 4xx do not.
func (c *Client) get(ctx context.Context, endpoint, path string, params map[string]string, out any) error {
	start := time.Now()
	defer func() {
		c.metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	result, err := c.breakers[endpoint].Execute(func() (interface{}, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetQueryParam("appid", c.apiKey).
			Get(path)
		if err != nil {
			return nil, err
		}
		if code := resp.StatusCode(); code == http.StatusTooManyRequests || code >= 500 {
			return nil, upstreamFromResponse(endpoint, resp)
		}
		return resp, nil
	})
	if err != nil {
		return c.fail(endpoint, err)
	}

	resp, ok := result.(*resty.Response)
	if !ok {
		return c.fail(endpoint, fmt.Errorf("unexpected result type %T from circuit breaker", result))
	}
	if !resp.IsSuccess() {
		return c.fail(endpoint, upstreamFromResponse(endpoint, resp))
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return c.fail(endpoint, &domain.UpstreamError{
			Op:         endpoint,
			StatusCode: resp.StatusCode(),
			Message:    "malformed response body",
			Err:        fmt.Errorf("decode %s response: %w", endpoint, err),
		})
	}
	return nil
}

func (c *Client) fail(endpoint string, err error) error {
	var upstream *domain.UpstreamError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "circuit_open").Inc()
		return &domain.UpstreamError{Op: endpoint, Message: "service temporarily unavailable", Err: err}
	case errors.As(err, &upstream):
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return upstream
	default:
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		c.logger.Debug("openweather request failed", "endpoint", endpoint, "error", err)
		return &domain.UpstreamError{Op: endpoint, Err: fmt.Errorf("%s request: %w", endpoint, err)}
	}
}

// upstreamFromResponse captures the status and, when the body is the usual
// {"cod": ..., "message": ...} envelope, the upstream message.
func upstreamFromResponse(endpoint string, resp *resty.Response) *domain.UpstreamError {
	var body errorResponse
	_ = json.Unmarshal(resp.Body(), &body)
	return &domain.UpstreamError{
		Op:         endpoint,
		StatusCode: resp.StatusCode(),
		Message:    body.Message,
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
