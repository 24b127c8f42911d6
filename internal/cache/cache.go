// Package cache persists the last successful weather result so the dashboard
// can render instantly on the next visit.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-dashboard-service/internal/domain"
	"github.com/couchcryptid/weather-dashboard-service/internal/observability"
	"github.com/couchcryptid/weather-dashboard-service/internal/storage"
	"github.com/jonboulle/clockwork"
)

// Key is the single storage key holding the last CacheRecord.
const Key = "weather-dashboard:last-snapshot"

// DefaultFreshness is how long a saved record stays usable.
const DefaultFreshness = 30 * time.Minute

// LocalCache keeps exactly one CacheRecord. Freshness is checked on read;
// expired or unreadable records are deleted when encountered.
type LocalCache struct {
	store     storage.Store
	clock     clockwork.Clock
	freshness time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a LocalCache over store. A non-positive freshness uses DefaultFreshness.
func New(store storage.Store, freshness time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *LocalCache {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LocalCache{
		store:     store,
		clock:     clock,
		freshness: freshness,
		logger:    logger,
		metrics:   metrics,
	}
}

// Save replaces the stored record with place and snapshot stamped with the
// current time. Failures are logged and otherwise ignored.
func (c *LocalCache) Save(ctx context.Context, place domain.ResolvedPlace, snapshot domain.WeatherSnapshot) {
	rec := domain.CacheRecord{
		Version:     domain.CacheRecordVersion,
		Place:       place,
		Snapshot:    snapshot,
		FetchedAtMs: c.clock.Now().UnixMilli(),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("encode cache record failed", "error", err)
		c.metrics.LocalCache.WithLabelValues("save", "error").Inc()
		return
	}

	if err := c.store.Set(ctx, Key, data); err != nil {
		c.logger.Warn("cache write failed", "place", place.DisplayName, "error", err)
		c.metrics.LocalCache.WithLabelValues("save", "error").Inc()
		return
	}
	c.metrics.LocalCache.WithLabelValues("save", "ok").Inc()
}

// Load returns the stored record if it exists, parses, carries the current
// schema version, and is no older than the freshness window. Otherwise it
// returns nil.
func (c *LocalCache) Load(ctx context.Context) *domain.CacheRecord {
	data, ok, err := c.store.Get(ctx, Key)
	if err != nil {
		c.logger.Warn("cache read failed", "error", err)
		c.metrics.LocalCache.WithLabelValues("load", "error").Inc()
		return nil
	}
	if !ok {
		c.metrics.LocalCache.WithLabelValues("load", "miss").Inc()
		return nil
	}

	var rec domain.CacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.discard(ctx, "corrupt", "error", err)
		return nil
	}
	if rec.Version != domain.CacheRecordVersion {
		c.discard(ctx, "corrupt", "version", rec.Version)
		return nil
	}

	age := c.clock.Now().Sub(rec.FetchedAt())
	if age > c.freshness {
		c.discard(ctx, "expired", "age", age.String())
		return nil
	}

	c.metrics.LocalCache.WithLabelValues("load", "hit").Inc()
	return &rec
}

func (c *LocalCache) discard(ctx context.Context, reason string, attrs ...any) {
	c.logger.Info("discarding cached snapshot", append([]any{"reason", reason}, attrs...)...)
	c.metrics.LocalCache.WithLabelValues("load", reason).Inc()
	if err := c.store.Delete(ctx, Key); err != nil {
		c.logger.Warn("cache delete failed", "error", err)
	}
}
