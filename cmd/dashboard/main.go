package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/weather-dashboard-service/internal/adapter/http"
	"github.com/couchcryptid/weather-dashboard-service/internal/adapter/ipapi"
	kafkaadapter "github.com/couchcryptid/weather-dashboard-service/internal/adapter/kafka"
	"github.com/couchcryptid/weather-dashboard-service/internal/adapter/openweather"
	"github.com/couchcryptid/weather-dashboard-service/internal/cache"
	"github.com/couchcryptid/weather-dashboard-service/internal/config"
	"github.com/couchcryptid/weather-dashboard-service/internal/dashboard"
	"github.com/couchcryptid/weather-dashboard-service/internal/observability"
	"github.com/couchcryptid/weather-dashboard-service/internal/pipeline"
	"github.com/couchcryptid/weather-dashboard-service/internal/scheduler"
	"github.com/couchcryptid/weather-dashboard-service/internal/storage"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	logger.Info("snapshot storage ready", "backend", cfg.StorageBackend)

	client := openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.OpenWeatherBaseURL, cfg.OpenWeatherTimeout, logger, metrics)
	geocoder := openweather.NewCachedGeocoder(client, cfg.GeocodeCacheSize, metrics)
	localCache := cache.New(store, cfg.CacheFreshness, clockwork.NewRealClock(), logger, metrics)

	opts := []pipeline.Option{
		pipeline.WithConcurrentAqi(cfg.ConcurrentAqi),
		pipeline.WithReadiness(store),
	}
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled() {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		opts = append(opts, pipeline.WithPublisher(publisher))
		logger.Info("snapshot publishing enabled", "topic", cfg.KafkaSnapshotTopic)
	}
	p := pipeline.New(geocoder, client, client, localCache, logger, metrics, opts...)

	dashOpts := []dashboard.Option{
		dashboard.WithCache(localCache),
		dashboard.WithFallbacks(dashboard.Fallbacks{
			Default:        cfg.DefaultLocation,
			LocatorFailure: cfg.LocatorFallbackLocation,
			RunFailure:     cfg.FallbackLocation,
		}),
	}
	if cfg.IPAPIEnabled {
		dashOpts = append(dashOpts, dashboard.WithLocator(ipapi.NewClient(cfg.IPAPIBaseURL, cfg.OpenWeatherTimeout, logger)))
		logger.Info("ambient ip lookup enabled", "base_url", cfg.IPAPIBaseURL)
	}
	dash := dashboard.New(p, dashboard.Renderer{IconBaseURL: cfg.IconBaseURL}, logger, metrics, dashOpts...)

	refresher := scheduler.New(dash, cfg.RefreshInterval, 2*cfg.OpenWeatherTimeout, logger, metrics)
	if err := refresher.Start(); err != nil {
		logger.Error("failed to schedule refresh", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, dash, p, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	refresher.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("storage close error", "error", err)
	}

	logger.Info("shutdown complete")
}
