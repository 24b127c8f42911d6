// Package dashboard drives what the weather page shows. It turns queries
// into pipeline runs, applies only the most recent run to the view, and
// picks a query at bootstrap when the page did not supply one.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/weather-dashboard-service/internal/domain"
	"github.com/couchcryptid/weather-dashboard-service/internal/observability"
	"github.com/couchcryptid/weather-dashboard-service/internal/pipeline"
)

var (
	// ErrNothingToRefresh is returned by Refresh before any run has succeeded.
	ErrNothingToRefresh = errors.New("no successful query to refresh yet")

	// ErrRefreshBusy is returned by Refresh while a submission is running.
	ErrRefreshBusy = errors.New("submission in flight, refresh skipped")
)

// Runner executes one retrieval pipeline pass.
type Runner interface {
	Run(ctx context.Context, query domain.LocationQuery, observe pipeline.Observer, opts ...pipeline.RunOption) (pipeline.Result, error)
}

// CacheReader returns the last fresh snapshot, or nil.
type CacheReader interface {
	Load(ctx context.Context) *domain.CacheRecord
}

// Locator guesses a query for a visitor without an explicit location.
type Locator interface {
	Locate(ctx context.Context, clientIP string) (domain.LocationQuery, error)
}

// Port receives every view applied to the dashboard, in order. Show is
// called with the dashboard lock held and must not call back into it.
type Port interface {
	Show(View)
}

// PortFunc adapts a function to Port.
type PortFunc func(View)

func (f PortFunc) Show(v View) { f(v) }

// Fallbacks are the place names substituted when bootstrap has nothing better.
type Fallbacks struct {
	Default        string // no ambient locator configured
	LocatorFailure string // the locator returned an error
	RunFailure     string // the ambient run failed
}

// Option customizes a Dashboard.
type Option func(*Dashboard)

// WithCache lets bootstrap serve a fresh cached snapshot.
func WithCache(c CacheReader) Option { return func(d *Dashboard) { d.cache = c } }

// WithLocator enables the ambient bootstrap path.
func WithLocator(l Locator) Option { return func(d *Dashboard) { d.locator = l } }

// WithFallbacks sets the bootstrap substitutes.
func WithFallbacks(f Fallbacks) Option { return func(d *Dashboard) { d.fallbacks = f } }

// WithPorts subscribes view ports.
func WithPorts(ports ...Port) Option {
	return func(d *Dashboard) { d.ports = append(d.ports, ports...) }
}

// Dashboard holds the currently applied view. Submissions may overlap; each
// takes a new generation and only the latest generation may change the view
// or the cached snapshot. Refreshes reuse the current generation and so can
// never supersede a submission.
type Dashboard struct {
	runner    Runner
	renderer  Renderer
	cache     CacheReader
	locator   Locator
	fallbacks Fallbacks
	ports     []Port
	logger    *slog.Logger
	metrics   *observability.Metrics

	generation atomic.Uint64
	inFlight   atomic.Int32

	mu        sync.Mutex
	current   View
	lastQuery *domain.LocationQuery
}

// New creates a Dashboard showing the loading view.
func New(runner Runner, renderer Renderer, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Dashboard {
	d := &Dashboard{
		runner:   runner,
		renderer: renderer,
		logger:   logger,
		metrics:  metrics,
		current:  Loading(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Current returns the view most recently applied.
func (d *Dashboard) Current() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// LastQuery returns the query of the most recent successful applied run.
func (d *Dashboard) LastQuery() (domain.LocationQuery, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastQuery == nil {
		return domain.LocationQuery{}, false
	}
	return *d.lastQuery, true
}

// Submit shows the loading view, runs the pipeline for query, and applies the
// outcome if no newer submission started in the meantime. The returned view
// is this run's outcome either way; Stale is set when it was not applied.
// The error is the pipeline failure, if any.
func (d *Dashboard) Submit(ctx context.Context, query domain.LocationQuery, source Source) (View, error) {
	d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	gen := d.generation.Add(1)
	loading := Loading()
	loading.Source = source
	d.apply(gen, loading, nil)

	view, err := d.run(ctx, gen, query, source)
	var succeeded *domain.LocationQuery
	if err == nil {
		succeeded = &query
	}
	if !d.apply(gen, view, succeeded) {
		d.discard(&view)
	}
	return view, err
}

// Reject applies an error view for a query that could not even be parsed.
func (d *Dashboard) Reject(err error) View {
	gen := d.generation.Add(1)
	view := Failed(err)
	view.Source = SourceQuery
	view.Generation = gen
	d.apply(gen, view, nil)
	return view
}

// Bootstrap picks the first available source: an explicit query in params,
// a fresh cached snapshot, the ambient locator, then the configured
// fallbacks. Each fallback is tried at most once.
func (d *Dashboard) Bootstrap(ctx context.Context, params url.Values, clientIP string) (View, error) {
	query, ok, err := domain.ParseLocationQuery(params)
	if err != nil {
		return d.Reject(err), err
	}
	if ok {
		return d.Submit(ctx, query, SourceQuery)
	}

	if view, ok := d.fromCache(ctx); ok {
		return view, nil
	}

	if d.locator == nil {
		d.logger.Info("no ambient locator, using default location", "location", d.fallbacks.Default)
		return d.Submit(ctx, domain.NameQuery(d.fallbacks.Default), SourceDefault)
	}

	ambient, err := d.locator.Locate(ctx, clientIP)
	if err != nil {
		d.logger.Warn("ambient lookup failed, using fallback location",
			"error", err,
			"location", d.fallbacks.LocatorFailure,
		)
		return d.Submit(ctx, domain.NameQuery(d.fallbacks.LocatorFailure), SourceFallback)
	}

	view, err := d.Submit(ctx, ambient, SourceAmbient)
	if err == nil || view.Stale {
		return view, err
	}
	d.logger.Warn("ambient run failed, using fallback location",
		"error", err,
		"location", d.fallbacks.RunFailure,
	)
	return d.Submit(ctx, domain.NameQuery(d.fallbacks.RunFailure), SourceFallback)
}

// Refresh re-runs the last successful query without showing the loading
// view. It is skipped while a submission is running, and its outcome is
// applied only on success and only if nothing else started meanwhile.
func (d *Dashboard) Refresh(ctx context.Context) (View, error) {
	gen := d.generation.Load()
	query, ok := d.LastQuery()
	if !ok {
		return View{}, ErrNothingToRefresh
	}
	if d.inFlight.Load() > 0 {
		return View{}, ErrRefreshBusy
	}

	view, err := d.run(ctx, gen, query, SourceRefresh)
	if err != nil {
		return view, err
	}
	if !d.apply(gen, view, &query) {
		d.discard(&view)
	}
	return view, nil
}

// run executes the pipeline for gen and renders its outcome. The cache is
// only written while gen is still the latest generation.
func (d *Dashboard) run(ctx context.Context, gen uint64, query domain.LocationQuery, source Source) (View, error) {
	logger := d.logger.With("generation", gen, "source", string(source))
	res, err := d.runner.Run(ctx, query,
		func(s pipeline.State) { logger.Debug("pipeline state", "state", string(s)) },
		pipeline.WhileCurrent(func() bool { return d.generation.Load() == gen }),
	)

	var view View
	if err != nil {
		view = Failed(err)
	} else {
		view = d.renderer.Render(res.Place, res.Snapshot)
		view.RunID = res.RunID
		fetched := res.FetchedAt
		view.FetchedAt = &fetched
	}
	view.Source = source
	view.Generation = gen
	return view, err
}

func (d *Dashboard) discard(view *View) {
	view.Stale = true
	d.metrics.StaleResults.Inc()
	d.logger.Info("discarding superseded result",
		"generation", view.Generation,
		"latest", d.generation.Load(),
		"source", string(view.Source),
	)
}

func (d *Dashboard) fromCache(ctx context.Context) (View, bool) {
	if d.cache == nil {
		return View{}, false
	}
	rec := d.cache.Load(ctx)
	if rec == nil {
		return View{}, false
	}

	gen := d.generation.Add(1)
	view := d.renderer.Render(rec.Place, rec.Snapshot)
	view.Source = SourceCache
	fetched := rec.FetchedAt()
	view.FetchedAt = &fetched
	view.Generation = gen
	cached := domain.CoordsQuery(rec.Place.Lat, rec.Place.Lon)
	if !d.apply(gen, view, &cached) {
		view.Stale = true
		return view, true
	}
	d.logger.Info("bootstrapped from cache", "place", rec.Place.DisplayName, "fetched_at", fetched)
	return view, true
}

// apply replaces the current view if gen is still the latest generation.
// A non-nil query becomes the one Refresh re-runs.
func (d *Dashboard) apply(gen uint64, view View, query *domain.LocationQuery) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.generation.Load() {
		return false
	}
	view.Generation = gen
	d.current = view
	if query != nil {
		d.lastQuery = query
	}
	for _, p := range d.ports {
		p.Show(view)
	}
	return true
}
