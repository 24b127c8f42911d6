// Command probe runs one weather retrieval for a place name or coordinate
// pair and prints the rendered dashboard view as JSON. It reads the same
// environment as the service but always uses in-memory storage.
//
// Usage:
//
//	go run ./cmd/probe -location "London, GB"
//	go run ./cmd/probe -lat 40 -lon -75
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/couchcryptid/weather-dashboard-service/internal/adapter/openweather"
	"github.com/couchcryptid/weather-dashboard-service/internal/cache"
	"github.com/couchcryptid/weather-dashboard-service/internal/config"
	"github.com/couchcryptid/weather-dashboard-service/internal/dashboard"
	"github.com/couchcryptid/weather-dashboard-service/internal/domain"
	"github.com/couchcryptid/weather-dashboard-service/internal/observability"
	"github.com/couchcryptid/weather-dashboard-service/internal/pipeline"
	"github.com/couchcryptid/weather-dashboard-service/internal/storage"
	"github.com/jonboulle/clockwork"
)

func main() {
	location := flag.String("location", "", "place name, e.g. \"London, GB\"")
	lat := flag.String("lat", "", "latitude, used with -lon")
	lon := flag.String("lon", "", "longitude, used with -lat")
	flag.Parse()

	params := url.Values{}
	if *location != "" {
		params.Set("location", *location)
	}
	if *lat != "" || *lon != "" {
		params.Set("lat", *lat)
		params.Set("lon", *lon)
	}

	query, ok, err := domain.ParseLocationQuery(params)
	if !ok {
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid query: %v\n", err)
		os.Exit(2)
	}

	os.Exit(run(query))
}

func run(query domain.LocationQuery) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}
	// Logs go to stderr so stdout stays pure JSON.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	metrics := observability.NewMetrics()

	client := openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.OpenWeatherBaseURL, cfg.OpenWeatherTimeout, logger, metrics)
	localCache := cache.New(storage.NewMemoryStore(), cfg.CacheFreshness, clockwork.NewRealClock(), logger, metrics)
	p := pipeline.New(client, client, client, localCache, logger, metrics, pipeline.WithConcurrentAqi(cfg.ConcurrentAqi))
	dash := dashboard.New(p, dashboard.Renderer{IconBaseURL: cfg.IconBaseURL}, logger, metrics)

	ctx, cancel := context.WithTimeout(context.Background(), 3*cfg.OpenWeatherTimeout)
	defer cancel()

	view, runErr := dash.Submit(ctx, query, dashboard.SourceQuery)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(view); err != nil {
		logger.Error("encode view", "error", err)
		return 1
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", runErr)
		return exitCode(runErr)
	}
	return 0
}

// exitCode distinguishes bad input (2) and unknown places (3) from upstream failures (1).
func exitCode(err error) int {
	var (
		invalid  *domain.InvalidInputError
		notFound *domain.NotFoundError
	)
	switch {
	case errors.As(err, &invalid):
		return 2
	case errors.As(err, &notFound):
		return 3
	default:
		return 1
	}
}
