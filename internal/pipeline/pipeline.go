// Package pipeline resolves a location query into a weather snapshot:
// geocode, fetch weather, attach air quality, cache. A run either reaches
// StateDone with a Result or fails with a *Failure that names the state it
// failed from.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-dashboard-service/internal/domain"
	"github.com/couchcryptid/weather-dashboard-service/internal/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State is a step of the retrieval state machine.
type State string

const (
	StateIdle            State = "idle"
	StateResolving       State = "resolving"
	StateFetchingWeather State = "fetching_weather"
	StateFetchingAqi     State = "fetching_aqi"
	StateCaching         State = "caching"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Observer is notified synchronously on every state transition of a run.
type Observer func(State)

// SnapshotCache stores the last successful result. Save must not fail the caller.
type SnapshotCache interface {
	Save(ctx context.Context, place domain.ResolvedPlace, snapshot domain.WeatherSnapshot)
}

// Publisher forwards successful results to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, result Result) error
}

// Pinger reports whether the storage behind the cache is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Result is the output of a successful run.
type Result struct {
	RunID     string                 `json:"runId"`
	Query     domain.LocationQuery   `json:"query"`
	Place     domain.ResolvedPlace   `json:"place"`
	Snapshot  domain.WeatherSnapshot `json:"snapshot"`
	FetchedAt time.Time              `json:"fetchedAt"`
}

// Failure is the terminal error of a run. It unwraps to the typed domain error.
type Failure struct {
	RunID string
	State State // state the run failed from: idle, resolving or fetching_weather
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("pipeline failed while %s: %v", f.State, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithPublisher publishes every successful result, best-effort.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithConcurrentAqi fetches air quality alongside the forecast instead of after it.
func WithConcurrentAqi(enabled bool) Option {
	return func(p *Pipeline) { p.concurrentAqi = enabled }
}

// WithReadiness makes CheckReadiness ping the given backend.
func WithReadiness(pinger Pinger) Option {
	return func(p *Pipeline) { p.pinger = pinger }
}

// RunOption customizes a single run.
type RunOption func(*runConfig)

type runConfig struct {
	current func() bool
}

// WhileCurrent makes the run skip its cache write when current reports false
// on reaching StateCaching. The result is still returned.
func WhileCurrent(current func() bool) RunOption {
	return func(c *runConfig) { c.current = current }
}

// Pipeline orchestrates one geocode, weather, air quality, cache sequence per query.
// It holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	geocoder      domain.Geocoder
	weather       domain.WeatherProvider
	air           domain.AirQualityProvider
	cache         SnapshotCache
	publisher     Publisher
	pinger        Pinger
	logger        *slog.Logger
	metrics       *observability.Metrics
	concurrentAqi bool
}

// New creates a Pipeline. air and cache may be nil; the run then continues
// without air quality or without caching.
func New(geocoder domain.Geocoder, weather domain.WeatherProvider, air domain.AirQualityProvider, cache SnapshotCache, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		geocoder: geocoder,
		weather:  weather,
		air:      air,
		cache:    cache,
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil when the cache backend answers a ping.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if p.pinger == nil {
		return nil
	}
	if err := p.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("cache storage unreachable: %w", err)
	}
	return nil
}

// Run executes one pass of the state machine for query. observe may be nil.
// The pipeline never retries and never substitutes a different query.
func (p *Pipeline) Run(ctx context.Context, query domain.LocationQuery, observe Observer, opts ...RunOption) (Result, error) {
	if observe == nil {
		observe = func(State) {}
	}
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	start := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID, "query", query.String())

	if err := query.Validate(); err != nil {
		return Result{}, p.fail(logger, observe, runID, StateIdle, err)
	}

	observe(StateResolving)
	place, err := p.resolve(ctx, query, logger)
	if err != nil {
		return Result{}, p.fail(logger, observe, runID, StateResolving, err)
	}

	observe(StateFetchingWeather)
	forecast, aqi, err := p.fetch(ctx, place, logger, observe)
	if err != nil {
		return Result{}, p.fail(logger, observe, runID, StateFetchingWeather, err)
	}
	if aqi == nil {
		p.metrics.AqiUnavailable.Inc()
	}

	snapshot := domain.NewSnapshot(forecast, aqi)
	result := Result{
		RunID:     runID,
		Query:     query,
		Place:     place,
		Snapshot:  snapshot,
		FetchedAt: domain.Now(),
	}

	observe(StateCaching)
	switch {
	case p.cache == nil:
	case cfg.current != nil && !cfg.current():
		logger.Info("run superseded, leaving cached snapshot untouched", "place", place.DisplayName)
	default:
		p.cache.Save(ctx, place, snapshot)
	}
	p.publish(ctx, result, logger)

	observe(StateDone)
	p.metrics.PipelineRuns.WithLabelValues("done", "none").Inc()
	p.metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	logger.Info("pipeline run complete",
		"place", place.DisplayName,
		"hourly", len(snapshot.Hourly),
		"daily", len(snapshot.Daily),
		"aqi_available", aqi != nil,
		"duration", time.Since(start),
	)
	return result, nil
}

func (p *Pipeline) resolve(ctx context.Context, query domain.LocationQuery, logger *slog.Logger) (domain.ResolvedPlace, error) {
	if query.Kind == domain.QueryByCoords {
		return domain.ResolveByCoords(ctx, p.geocoder, query.Lat, query.Lon, logger), nil
	}
	return domain.ResolveByName(ctx, p.geocoder, query.Text)
}

// fetch retrieves the forecast and the air quality level. Only the forecast
// can fail; FetchingAqi is reported once the forecast is in hand.
func (p *Pipeline) fetch(ctx context.Context, place domain.ResolvedPlace, logger *slog.Logger, observe Observer) (domain.Forecast, *domain.AqiLevel, error) {
	if !p.concurrentAqi {
		forecast, err := domain.FetchForecast(ctx, p.weather, place.Lat, place.Lon)
		if err != nil {
			return domain.Forecast{}, nil, err
		}
		observe(StateFetchingAqi)
		return forecast, domain.LookupAirQuality(ctx, p.air, place.Lat, place.Lon, logger), nil
	}

	var (
		forecast domain.Forecast
		aqi      *domain.AqiLevel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		forecast, err = domain.FetchForecast(gctx, p.weather, place.Lat, place.Lon)
		return err
	})
	g.Go(func() error {
		aqi = domain.LookupAirQuality(gctx, p.air, place.Lat, place.Lon, logger)
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Forecast{}, nil, err
	}
	observe(StateFetchingAqi)
	return forecast, aqi, nil
}

func (p *Pipeline) publish(ctx context.Context, result Result, logger *slog.Logger) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, result); err != nil {
		logger.Warn("publish snapshot failed", "error", err)
		p.metrics.SnapshotsPublished.WithLabelValues("error").Inc()
		return
	}
	p.metrics.SnapshotsPublished.WithLabelValues("success").Inc()
}

func (p *Pipeline) fail(logger *slog.Logger, observe Observer, runID string, from State, err error) error {
	observe(StateFailed)
	p.metrics.PipelineRuns.WithLabelValues("failed", string(from)).Inc()
	if from == StateIdle {
		logger.Info("query rejected", "error", err)
	} else {
		logger.Error("pipeline run failed", "state", string(from), "error", err)
	}
	return &Failure{RunID: runID, State: from, Err: err}
}
