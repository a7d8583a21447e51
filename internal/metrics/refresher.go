package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/collectionpulse/engine/internal/model"
)

// EventSource provides a collection's events for aggregation.
type EventSource interface {
	EventsSince(ctx context.Context, collectionID string, since time.Time) ([]model.MarketEvent, error)
}

// MetricSink receives computed rows, one per (collection, window).
type MetricSink interface {
	UpsertMetric(ctx context.Context, m model.ComputedMetric) error
}

// Config holds refresher settings.
type Config struct {
	Workers int // Max collections refreshing concurrently
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Workers: 4}
}

// Refresher recomputes window aggregates for batches of collections.
type Refresher struct {
	cfg     Config
	events  EventSource
	metrics MetricSink
	logger  *slog.Logger

	now func() time.Time
}

// NewRefresher creates a Refresher.
func NewRefresher(cfg Config, events EventSource, metrics MetricSink, logger *slog.Logger) *Refresher {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultConfig().Workers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		cfg:     cfg,
		events:  events,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// WindowMetrics is one collection's refreshed rows.
type WindowMetrics = map[model.MetricWindow]model.ComputedMetric

// Refresh recomputes and stores all window rows for each collection.
// Collections refresh independently in parallel; one collection's failure
// does not stop the others. Failed collections are reported in the second
// return value and absent from the first.
func (r *Refresher) Refresh(ctx context.Context, collectionIDs []string) (map[string]WindowMetrics, map[string]error) {
	results := make(map[string]WindowMetrics, len(collectionIDs))
	failures := make(map[string]error)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	start := r.now()
	for _, id := range collectionIDs {
		id := id
		g.Go(func() error {
			computed, err := r.refreshOne(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[id] = err
				return nil // Isolate failures to their collection.
			}
			results[id] = computed
			return nil
		})
	}
	g.Wait()

	r.logger.Debug("metrics refresh complete",
		"collections", len(collectionIDs),
		"failed", len(failures),
		"duration", time.Since(start),
	)
	return results, failures
}

// refreshOne loads the widest window of events, computes every window row
// and upserts them.
func (r *Refresher) refreshOne(ctx context.Context, collectionID string) (WindowMetrics, error) {
	now := r.now().UTC()
	widest := model.AllWindows[len(model.AllWindows)-1]

	events, err := r.events.EventsSince(ctx, collectionID, now.Add(-widest.Duration()))
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	computed := Compute(events, now)
	for w, m := range computed {
		m.CollectionID = collectionID
		computed[w] = m
		if err := r.metrics.UpsertMetric(ctx, m); err != nil {
			return nil, fmt.Errorf("upsert %s metric: %w", w, err)
		}
	}
	return computed, nil
}
