package dashboard_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/weather-dashboard-service/internal/cache"
	"github.com/couchcryptid/weather-dashboard-service/internal/dashboard"
	"github.com/couchcryptid/weather-dashboard-service/internal/domain"
	"github.com/couchcryptid/weather-dashboard-service/internal/observability"
	"github.com/couchcryptid/weather-dashboard-service/internal/pipeline"
	"github.com/couchcryptid/weather-dashboard-service/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

// fakeRunner answers each query by its String() form. Queries listed in
// gates block until their channel is closed.
type fakeRunner struct {
	mu      sync.Mutex
	results map[string]pipeline.Result
	errs    map[string]error
	gates   map[string]chan struct{}
	started chan string
	queries []domain.LocationQuery
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results: map[string]pipeline.Result{},
		errs:    map[string]error{},
		gates:   map[string]chan struct{}{},
		started: make(chan string, 16),
	}
}

func (f *fakeRunner) succeed(q domain.LocationQuery, name string, temp float64) {
	f.results[q.String()] = pipeline.Result{
		RunID: "run-" + name,
		Query: q,
		Place: domain.ResolvedPlace{DisplayName: name},
		Snapshot: domain.WeatherSnapshot{
			Current: domain.CurrentConditions{Temperature: temp, Description: "clear sky"},
		},
		FetchedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRunner) Run(ctx context.Context, q domain.LocationQuery, observe pipeline.Observer, _ ...pipeline.RunOption) (pipeline.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	gate := f.gates[q.String()]
	res, ok := f.results[q.String()]
	err := f.errs[q.String()]
	f.mu.Unlock()

	observe(pipeline.StateResolving)
	f.started <- q.String()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return pipeline.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return pipeline.Result{}, err
	}
	if !ok {
		return pipeline.Result{}, &domain.NotFoundError{Query: q.String()}
	}
	return res, nil
}

func (f *fakeRunner) ran() []domain.LocationQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.LocationQuery(nil), f.queries...)
}

// placeGeocoder resolves names to fixed coordinates.
type placeGeocoder map[string]domain.GeocodingResult

func (g placeGeocoder) ForwardGeocode(_ context.Context, q string) (domain.GeocodingResult, error) {
	return g[q], nil
}

func (g placeGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	return domain.GeocodingResult{}, nil
}

// gatedWeather blocks forecasts for latitudes listed in gates.
type gatedWeather struct {
	gates   map[float64]chan struct{}
	started chan float64
}

func (w *gatedWeather) FetchWeather(ctx context.Context, lat, _ float64) (domain.Forecast, error) {
	w.started <- lat
	if gate := w.gates[lat]; gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Forecast{}, ctx.Err()
		}
	}
	return domain.Forecast{
		Current: domain.CurrentConditions{Temperature: lat * 10, Description: "clear sky", IconCode: "01d"},
	}, nil
}

type fakeCache struct {
	rec *domain.CacheRecord
}

func (c *fakeCache) Load(context.Context) *domain.CacheRecord { return c.rec }

type fakeLocator struct {
	query domain.LocationQuery
	err   error
	gotIP string
}

func (l *fakeLocator) Locate(_ context.Context, ip string) (domain.LocationQuery, error) {
	l.gotIP = ip
	return l.query, l.err
}

type recordingPort struct {
	mu    sync.Mutex
	views []dashboard.View
}

func (p *recordingPort) Show(v dashboard.View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.views = append(p.views, v)
}

func (p *recordingPort) statuses() []dashboard.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]dashboard.Status, 0, len(p.views))
	for _, v := range p.views {
		out = append(out, v.Status)
	}
	return out
}

var fallbacks = dashboard.Fallbacks{
	Default:        "Paris, FR",
	LocatorFailure: "New York, US",
	RunFailure:     "London, GB",
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDashboard(runner dashboard.Runner, metrics *observability.Metrics, opts ...dashboard.Option) *dashboard.Dashboard {
	opts = append([]dashboard.Option{dashboard.WithFallbacks(fallbacks)}, opts...)
	return dashboard.New(runner, dashboard.Renderer{IconBaseURL: "https://icons.test"}, discardLogger(), metrics, opts...)
}

// --- tests ---

func TestSubmit_ShowsLoadingThenResult(t *testing.T) {
	runner := newFakeRunner()
	runner.succeed(domain.NameQuery("London, GB"), "London, GB", 15.2)
	port := &recordingPort{}
	d := newDashboard(runner, observability.NewMetricsForTesting(), dashboard.WithPorts(port))

	view, err := d.Submit(context.Background(), domain.NameQuery("London, GB"), dashboard.SourceQuery)
	require.NoError(t, err)

	assert.Equal(t, "15°C", view.Current.Temperature)
	assert.Equal(t, "London, GB", view.Location)
	assert.Equal(t, "run-London, GB", view.RunID)
	assert.False(t, view.Stale)
	assert.Equal(t, []dashboard.Status{dashboard.StatusLoading, dashboard.StatusReady}, port.statuses())
	assert.Equal(t, view, d.Current())

	last, ok := d.LastQuery()
	require.True(t, ok)
	assert.Equal(t, domain.NameQuery("London, GB"), last)
}

func TestSubmit_FailureReplacesViewWithError(t *testing.T) {
	runner := newFakeRunner()
	runner.succeed(domain.NameQuery("London, GB"), "London, GB", 15)
	d := newDashboard(runner, observability.NewMetricsForTesting())

	_, err := d.Submit(context.Background(), domain.NameQuery("London, GB"), dashboard.SourceQuery)
	require.NoError(t, err)

	view, err := d.Submit(context.Background(), domain.NameQuery("Atlantis"), dashboard.SourceQuery)
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)

	assert.Equal(t, dashboard.StatusError, view.Status)
	assert.Equal(t, "Location not found", view.Location)
	assert.Equal(t, dashboard.StatusError, d.Current().Status)

	last, ok := d.LastQuery()
	require.True(t, ok)
	assert.Equal(t, domain.NameQuery("London, GB"), last, "failed runs are not refreshed")
}

func TestSubmit_LatestWins(t *testing.T) {
	slow := domain.NameQuery("Slow City")
	fast := domain.NameQuery("Fast Town")

	runner := newFakeRunner()
	runner.succeed(slow, "Slow City", 30)
	runner.succeed(fast, "Fast Town", 10)
	gate := make(chan struct{})
	runner.gates[slow.String()] = gate

	metrics := observability.NewMetricsForTesting()
	port := &recordingPort{}
	d := newDashboard(runner, metrics, dashboard.WithPorts(port))

	type outcome struct {
		view dashboard.View
		err  error
	}
	slowDone := make(chan outcome, 1)
	go func() {
		v, err := d.Submit(context.Background(), slow, dashboard.SourceQuery)
		slowDone <- outcome{v, err}
	}()
	require.Equal(t, slow.String(), <-runner.started)

	fastView, err := d.Submit(context.Background(), fast, dashboard.SourceQuery)
	require.NoError(t, err)
	<-runner.started
	assert.False(t, fastView.Stale)

	close(gate)
	got := <-slowDone
	require.NoError(t, got.err)
	assert.True(t, got.view.Stale)
	assert.Equal(t, "30°C", got.view.Current.Temperature)

	current := d.Current()
	assert.Equal(t, "Fast Town", current.Location)
	assert.Equal(t, "10°C", current.Current.Temperature)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.StaleResults), 0)

	for _, v := range port.views {
		assert.NotEqual(t, "Slow City", v.Location, "stale result must never reach a port")
	}
	last, _ := d.LastQuery()
	assert.Equal(t, fast, last)
}

func TestSubmit_SupersededRunLeavesCacheAlone(t *testing.T) {
	ctx := context.Background()
	slow := domain.NameQuery("Slow City")
	fast := domain.NameQuery("Fast Town")

	geo := placeGeocoder{
		"Slow City": {Lat: 1, Lon: 1, Name: "Slow City", Matched: true},
		"Fast Town": {Lat: 2, Lon: 2, Name: "Fast Town", Matched: true},
	}
	weather := &gatedWeather{
		gates:   map[float64]chan struct{}{1: make(chan struct{})},
		started: make(chan float64, 4),
	}
	metrics := observability.NewMetricsForTesting()
	lc := cache.New(storage.NewMemoryStore(), 0, clockwork.NewFakeClock(), discardLogger(), metrics)
	p := pipeline.New(geo, weather, nil, lc, discardLogger(), metrics)
	d := newDashboard(p, metrics, dashboard.WithCache(lc))

	slowDone := make(chan error, 1)
	go func() {
		_, err := d.Submit(ctx, slow, dashboard.SourceQuery)
		slowDone <- err
	}()
	require.InDelta(t, 1, <-weather.started, 0)

	_, err := d.Submit(ctx, fast, dashboard.SourceQuery)
	require.NoError(t, err)
	require.InDelta(t, 2, <-weather.started, 0)

	close(weather.gates[1])
	require.NoError(t, <-slowDone)

	assert.Equal(t, "Fast Town", d.Current().Location)
	rec := lc.Load(ctx)
	require.NotNil(t, rec)
	assert.Equal(t, "Fast Town", rec.Place.DisplayName)

	view, err := d.Bootstrap(ctx, url.Values{}, "")
	require.NoError(t, err)
	assert.Equal(t, dashboard.SourceCache, view.Source)
	assert.Equal(t, "Fast Town", view.Location)
	last, ok := d.LastQuery()
	require.True(t, ok)
	assert.Equal(t, domain.CoordsQuery(2, 2), last)
}

func TestBootstrap_URLQueryBeatsCache(t *testing.T) {
	runner := newFakeRunner()
	runner.succeed(domain.NameQuery("Berlin, DE"), "Berlin, DE", 5)
	c := &fakeCache{rec: &domain.CacheRecord{Version: 1, Place: domain.ResolvedPlace{DisplayName: "London, GB"}}}
	d := newDashboard(runner, observability.NewMetricsForTesting(), dashboard.WithCache(c))

	view, err := d.Bootstrap(context.Background(), url.Values{"location": {"Berlin, DE"}}, "")
	require.NoError(t, err)
	assert.Equal(t, dashboard.SourceQuery, view.Source)
	assert.Equal(t, "Berlin, DE", view.Location)
}

func TestBootstrap_CoordinatesFromURL(t *testing.T) {
	q := domain.CoordsQuery(40, -75)
	runner := newFakeRunner()
	runner.succeed(q, "Lat: 40.00, Lon: -75.00", 21)
	d := newDashboard(runner, observability.NewMetricsForTesting())

	view, err := d.Bootstrap(context.Background(), url.Values{"lat": {"40"}, "lon": {"-75"}}, "")
	require.NoError(t, err)
	assert.Equal(t, "Lat: 40.00, Lon: -75.00", view.Location)
	assert.Equal(t, []domain.LocationQuery{q}, runner.ran())
}

func TestBootstrap_InvalidURLQuery(t *testing.T) {
	runner := newFakeRunner()
	d := newDashboard(runner, observability.NewMetricsForTesting())

	view, err := d.Bootstrap(context.Background(), url.Values{"lat": {"abc"}, "lon": {"1"}}, "")
	var invalid *domain.InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, dashboard.StatusError, view.Status)
	assert.Equal(t, "invalid_input", view.Error.Kind)
	assert.Empty(t, runner.ran())
}

func TestBootstrap_FreshCache(t *testing.T) {
	runner := newFakeRunner()
	fetched := time.Date(2026, 3, 1, 11, 45, 0, 0, time.UTC)
	c := &fakeCache{rec: &domain.CacheRecord{
		Version:     1,
		Place:       domain.ResolvedPlace{Lat: 51.51, Lon: -0.13, DisplayName: "London, GB"},
		Snapshot:    domain.WeatherSnapshot{Current: domain.CurrentConditions{Temperature: 15.2, Description: "mist"}},
		FetchedAtMs: fetched.UnixMilli(),
	}}
	d := newDashboard(runner, observability.NewMetricsForTesting(), dashboard.WithCache(c), dashboard.WithLocator(&fakeLocator{}))

	view, err := d.Bootstrap(context.Background(), url.Values{}, "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, dashboard.SourceCache, view.Source)
	assert.Equal(t, "London, GB", view.Location)
	assert.Equal(t, "15°C", view.Current.Temperature)
	require.NotNil(t, view.FetchedAt)
	assert.Equal(t, fetched, *view.FetchedAt)
	assert.Empty(t, runner.ran())

	last, ok := d.LastQuery()
	require.True(t, ok)
	assert.Equal(t, domain.CoordsQuery(51.51, -0.13), last)
}

func TestBootstrap_AmbientPaths(t *testing.T) {
	ambient := domain.CoordsQuery(37.4, -122.1)

	tests := []struct {
		name       string
		locator    *fakeLocator
		setup      func(r *fakeRunner)
		wantSource dashboard.Source
		wantQuery  []domain.LocationQuery
		wantErr    bool
	}{
		{
			name:       "no locator uses default",
			locator:    nil,
			setup:      func(r *fakeRunner) { r.succeed(domain.NameQuery("Paris, FR"), "Paris, FR", 12) },
			wantSource: dashboard.SourceDefault,
			wantQuery:  []domain.LocationQuery{domain.NameQuery("Paris, FR")},
		},
		{
			name:       "locator success",
			locator:    &fakeLocator{query: ambient},
			setup:      func(r *fakeRunner) { r.succeed(ambient, "Mountain View, California, US", 18) },
			wantSource: dashboard.SourceAmbient,
			wantQuery:  []domain.LocationQuery{ambient},
		},
		{
			name:       "locator error",
			locator:    &fakeLocator{err: errors.New("reserved range")},
			setup:      func(r *fakeRunner) { r.succeed(domain.NameQuery("New York, US"), "New York, US", 8) },
			wantSource: dashboard.SourceFallback,
			wantQuery:  []domain.LocationQuery{domain.NameQuery("New York, US")},
		},
		{
			name:    "ambient run fails",
			locator: &fakeLocator{query: ambient},
			setup: func(r *fakeRunner) {
				r.errs[ambient.String()] = &domain.UpstreamError{Op: "weather", StatusCode: 500}
				r.succeed(domain.NameQuery("London, GB"), "London, GB", 15)
			},
			wantSource: dashboard.SourceFallback,
			wantQuery:  []domain.LocationQuery{ambient, domain.NameQuery("London, GB")},
		},
		{
			name:    "fallback also fails",
			locator: &fakeLocator{query: ambient},
			setup: func(r *fakeRunner) {
				r.errs[ambient.String()] = &domain.UpstreamError{Op: "weather", StatusCode: 500}
				r.errs[domain.NameQuery("London, GB").String()] = &domain.UpstreamError{Op: "geocode", StatusCode: 500}
			},
			wantSource: dashboard.SourceFallback,
			wantQuery:  []domain.LocationQuery{ambient, domain.NameQuery("London, GB")},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			tt.setup(runner)

			opts := []dashboard.Option{dashboard.WithCache(&fakeCache{})}
			if tt.locator != nil {
				opts = append(opts, dashboard.WithLocator(tt.locator))
			}
			d := newDashboard(runner, observability.NewMetricsForTesting(), opts...)

			view, err := d.Bootstrap(context.Background(), url.Values{}, "203.0.113.9")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, dashboard.StatusError, view.Status)
			} else {
				require.NoError(t, err)
				assert.Equal(t, dashboard.StatusReady, view.Status)
			}
			assert.Equal(t, tt.wantSource, view.Source)
			assert.Equal(t, tt.wantQuery, runner.ran())
			if tt.locator != nil {
				assert.Equal(t, "203.0.113.9", tt.locator.gotIP)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	runner := newFakeRunner()
	runner.succeed(domain.NameQuery("London, GB"), "London, GB", 15)
	d := newDashboard(runner, observability.NewMetricsForTesting())

	_, err := d.Refresh(context.Background())
	require.ErrorIs(t, err, dashboard.ErrNothingToRefresh)

	_, err = d.Submit(context.Background(), domain.NameQuery("London, GB"), dashboard.SourceQuery)
	require.NoError(t, err)

	view, err := d.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dashboard.SourceRefresh, view.Source)
	assert.Len(t, runner.ran(), 2)
}

func TestRefresh_SkippedWhileSubmissionRuns(t *testing.T) {
	ctx := context.Background()
	london := domain.NameQuery("London, GB")
	tokyo := domain.NameQuery("Tokyo, JP")

	runner := newFakeRunner()
	runner.succeed(london, "London, GB", 15)
	runner.succeed(tokyo, "Tokyo, JP", 22)
	gate := make(chan struct{})
	runner.gates[tokyo.String()] = gate
	d := newDashboard(runner, observability.NewMetricsForTesting())

	_, err := d.Submit(ctx, london, dashboard.SourceQuery)
	require.NoError(t, err)
	<-runner.started

	tokyoDone := make(chan dashboard.View, 1)
	go func() {
		v, _ := d.Submit(ctx, tokyo, dashboard.SourceQuery)
		tokyoDone <- v
	}()
	require.Equal(t, tokyo.String(), <-runner.started)

	_, err = d.Refresh(ctx)
	require.ErrorIs(t, err, dashboard.ErrRefreshBusy)

	close(gate)
	got := <-tokyoDone
	assert.False(t, got.Stale)
	assert.Equal(t, "Tokyo, JP", d.Current().Location)
	assert.Equal(t, []domain.LocationQuery{london, tokyo}, runner.ran())
}

func TestRefresh_SupersededBySubmission(t *testing.T) {
	ctx := context.Background()
	london := domain.NameQuery("London, GB")
	tokyo := domain.NameQuery("Tokyo, JP")

	runner := newFakeRunner()
	runner.succeed(london, "London, GB", 15)
	runner.succeed(tokyo, "Tokyo, JP", 22)
	metrics := observability.NewMetricsForTesting()
	d := newDashboard(runner, metrics)

	_, err := d.Submit(ctx, london, dashboard.SourceQuery)
	require.NoError(t, err)
	<-runner.started

	gate := make(chan struct{})
	runner.mu.Lock()
	runner.gates[london.String()] = gate
	runner.mu.Unlock()

	refreshDone := make(chan dashboard.View, 1)
	go func() {
		v, _ := d.Refresh(ctx)
		refreshDone <- v
	}()
	require.Equal(t, london.String(), <-runner.started)

	_, err = d.Submit(ctx, tokyo, dashboard.SourceQuery)
	require.NoError(t, err)
	<-runner.started

	close(gate)
	refreshed := <-refreshDone
	assert.True(t, refreshed.Stale)
	assert.Equal(t, "Tokyo, JP", d.Current().Location)
	last, _ := d.LastQuery()
	assert.Equal(t, tokyo, last)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.StaleResults), 0)
}

func TestRefresh_KeepsViewOnFailureAndSkipsLoading(t *testing.T) {
	ctx := context.Background()
	london := domain.NameQuery("London, GB")

	runner := newFakeRunner()
	runner.succeed(london, "London, GB", 15)
	port := &recordingPort{}
	d := newDashboard(runner, observability.NewMetricsForTesting(), dashboard.WithPorts(port))

	_, err := d.Submit(ctx, london, dashboard.SourceQuery)
	require.NoError(t, err)
	before := d.Current()

	runner.mu.Lock()
	runner.errs[london.String()] = &domain.UpstreamError{Op: "weather", StatusCode: 503}
	runner.mu.Unlock()

	_, err = d.Refresh(ctx)
	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, before, d.Current())

	runner.mu.Lock()
	delete(runner.errs, london.String())
	runner.mu.Unlock()

	view, err := d.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, view.Stale)
	assert.Equal(t, dashboard.SourceRefresh, d.Current().Source)
	assert.Equal(t,
		[]dashboard.Status{dashboard.StatusLoading, dashboard.StatusReady, dashboard.StatusReady},
		port.statuses(),
	)
}
