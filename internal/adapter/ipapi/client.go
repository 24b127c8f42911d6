// Package ipapi locates a visitor from their IP address using ip-api.com.
// It backs the ambient bootstrap path when the page has no explicit query.
package ipapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/couchcryptid/weather-dashboard-service/internal/domain"
	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the free ip-api.com endpoint (HTTP only on the free tier).
const DefaultBaseURL = "http://ip-api.com"

const fields = "status,message,lat,lon,city,countryCode"

type response struct {
	Status      string  `json:"status"` // "success" or "fail"
	Message     string  `json:"message"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	City        string  `json:"city"`
	CountryCode string  `json:"countryCode"`
}

// Client implements the dashboard's ambient Locator.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient creates an ip-api.com client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:   resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		logger: logger,
	}
}

// Locate returns a coordinate query for clientIP. Private, loopback, or
// unparsable addresses are looked up as the service's own public address.
func (c *Client) Locate(ctx context.Context, clientIP string) (domain.LocationQuery, error) {
	path := "/json/"
	if ip := net.ParseIP(clientIP); ip != nil && !ip.IsPrivate() && !ip.IsLoopback() && !ip.IsUnspecified() {
		path += url.PathEscape(ip.String())
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("fields", fields).
		Get(path)
	if err != nil {
		return domain.LocationQuery{}, fmt.Errorf("ip lookup request: %w", err)
	}
	if !resp.IsSuccess() {
		return domain.LocationQuery{}, fmt.Errorf("ip-api error: status %d", resp.StatusCode())
	}

	var body response
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return domain.LocationQuery{}, fmt.Errorf("decode ip lookup: %w", err)
	}
	if body.Status != "success" {
		msg := body.Message
		if msg == "" {
			msg = "unknown failure"
		}
		return domain.LocationQuery{}, errors.New("ip lookup failed: " + msg)
	}

	q := domain.CoordsQuery(body.Lat, body.Lon)
	if err := q.Validate(); err != nil {
		return domain.LocationQuery{}, fmt.Errorf("ip lookup returned bad coordinates: %w", err)
	}
	c.logger.Debug("located client by ip", "city", body.City, "country", body.CountryCode)
	return q, nil
}
