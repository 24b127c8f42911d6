// Package scheduler periodically re-runs the dashboard's last successful
// query so the cached snapshot never ages past its freshness window.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-dashboard-service/internal/dashboard"
	"github.com/couchcryptid/weather-dashboard-service/internal/observability"
	"github.com/go-co-op/gocron"
)

// Refreshable is the part of the dashboard a refresh job drives.
type Refreshable interface {
	Refresh(ctx context.Context) (dashboard.View, error)
}

// Refresher runs Refresh on a fixed interval.
type Refresher struct {
	scheduler *gocron.Scheduler
	target    Refreshable
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Refresher. timeout bounds each refresh run.
func New(target Refreshable, interval, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Refresher {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Refresher{
		scheduler: s,
		target:    target,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start schedules the job and starts the scheduler in the background. A
// non-positive interval disables refreshing. The first run happens one
// interval after Start.
func (r *Refresher) Start() error {
	if r.interval <= 0 {
		r.logger.Info("background refresh disabled")
		return nil
	}

	_, err := r.scheduler.Every(r.interval).WaitForSchedule().Do(r.RunOnce)
	if err != nil {
		return err
	}
	r.scheduler.StartAsync()
	r.logger.Info("background refresh scheduled", "interval", r.interval)
	return nil
}

// RunOnce refreshes the last query now.
func (r *Refresher) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	view, err := r.target.Refresh(ctx)
	switch {
	case errors.Is(err, dashboard.ErrNothingToRefresh):
		r.logger.Debug("refresh skipped, no query yet")
		r.metrics.Refreshes.WithLabelValues("skipped").Inc()
	case errors.Is(err, dashboard.ErrRefreshBusy):
		r.logger.Debug("refresh skipped, submission in flight")
		r.metrics.Refreshes.WithLabelValues("skipped").Inc()
	case err != nil:
		r.logger.Warn("background refresh failed", "error", err)
		r.metrics.Refreshes.WithLabelValues("error").Inc()
	default:
		r.logger.Info("background refresh complete", "place", view.Location, "stale", view.Stale)
		r.metrics.Refreshes.WithLabelValues("success").Inc()
	}
}

// Stop stops the scheduler and cancels any future runs.
func (r *Refresher) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
}
