// Package http serves the dashboard API on fiber, alongside the health,
// readiness and metrics endpoints.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/weather-dashboard-service/internal/dashboard"
	"github.com/couchcryptid/weather-dashboard-service/internal/domain"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dashboard is the presentation layer the API drives.
type Dashboard interface {
	Submit(ctx context.Context, query domain.LocationQuery, source dashboard.Source) (dashboard.View, error)
	Bootstrap(ctx context.Context, params url.Values, clientIP string) (dashboard.View, error)
	Reject(err error) dashboard.View
	Current() dashboard.View
}

// Server exposes the dashboard API plus health, readiness, and metrics endpoints.
type Server struct {
	app    *fiber.App
	addr   string
	dash   Dashboard
	logger *slog.Logger
}

// NewServer creates a fiber app with /api/v1 dashboard routes and
// /healthz, /readyz, and /metrics.
func NewServer(addr string, dash Dashboard, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	s := &Server{addr: addr, dash: dash, logger: logger}

	s.app = fiber.New(fiber.Config{
		AppName:               "weather-dashboard-service",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           60 * time.Second,
		ProxyHeader:           fiber.HeaderXForwardedFor,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(s.accessLog)

	s.app.Get("/healthz", adaptor.HTTPHandlerFunc(sharedobs.LivenessHandler()))
	s.app.Get("/readyz", adaptor.HTTPHandlerFunc(sharedobs.ReadinessHandler(ready)))
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := s.app.Group("/api/v1")
	v1.Get("/weather", s.handleWeather)
	v1.Get("/dashboard", s.handleBootstrap)
	v1.Get("/dashboard/current", s.handleCurrent)

	return s
}

// Start begins listening and blocks until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Test runs req through the app without a listener.
func (s *Server) Test(req *http.Request) (*http.Response, error) {
	return s.app.Test(req, -1)
}

// handleWeather runs an explicit query: ?location=... or ?lat=...&lon=...
func (s *Server) handleWeather(c *fiber.Ctx) error {
	params, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		invalid := &domain.InvalidInputError{Field: "query", Reason: "malformed query string"}
		return s.respond(c, s.dash.Reject(invalid), invalid)
	}

	query, ok, err := domain.ParseLocationQuery(params)
	if !ok {
		err = &domain.InvalidInputError{Field: "location", Reason: "provide location, or lat and lon"}
	}
	if err != nil {
		return s.respond(c, s.dash.Reject(err), err)
	}

	view, err := s.dash.Submit(c.UserContext(), query, dashboard.SourceQuery)
	return s.respond(c, view, err)
}

// handleBootstrap picks the initial view for a page load.
func (s *Server) handleBootstrap(c *fiber.Ctx) error {
	params, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		params = url.Values{}
	}
	view, err := s.dash.Bootstrap(c.UserContext(), params, c.IP())
	return s.respond(c, view, err)
}

func (s *Server) handleCurrent(c *fiber.Ctx) error {
	return c.JSON(s.dash.Current())
}

func (s *Server) respond(c *fiber.Ctx, view dashboard.View, err error) error {
	return c.Status(statusFor(err)).JSON(view)
}

// statusFor maps a pipeline outcome to an HTTP status.
func statusFor(err error) int {
	var (
		invalid  *domain.InvalidInputError
		notFound *domain.NotFoundError
		upstream *domain.UpstreamError
	)
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.As(err, &invalid):
		return fiber.StatusBadRequest
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &upstream):
		return fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("http request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
		"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
	)
	return err
}
