package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/collectionpulse/engine/internal/store"
)

// maxBatches caps how many delete batches a single sweep runs per table,
// so one sweep cannot monopolize the store indefinitely. A later sweep
// picks up whatever is left.
const maxBatches = 1000

// Config holds sweeper settings.
type Config struct {
	Retention     time.Duration // Rows older than now-Retention are removed
	BatchSize     int           // Rows deleted per batch (default: 1000)
	WarnThreshold int           // Log a warning when one table sheds more rows than this
}

// Sweeper removes expired rows from the event, snapshot and metric tables.
// Collections and alerts are never swept. Periodic runs are driven by the
// engine's job scheduler; Sweep itself is one on-demand pass.
type Sweeper struct {
	cfg    Config
	store  store.RetentionStore
	logger *slog.Logger

	now func() time.Time
}

// New creates a Sweeper.
func New(cfg Config, st store.RetentionStore, logger *slog.Logger) *Sweeper {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cfg:    cfg,
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// Sweep deletes rows older than now-retention from each table in batches of
// batchSize. It returns the rows removed per table. A failed batch aborts
// that table and returns the error; counts for tables already swept are
// still reported.
func (s *Sweeper) Sweep(ctx context.Context, retention time.Duration, batchSize int) (map[string]int, error) {
	if batchSize < 1 {
		batchSize = s.cfg.BatchSize
	}
	cutoff := s.now().Add(-retention)

	deleted := make(map[string]int, 3)
	tables := []struct {
		name   string
		delete func(context.Context, time.Time, int) (int, error)
	}{
		{"market_events", s.store.DeleteEventsBefore},
		{"market_snapshots", s.store.DeleteSnapshotsBefore},
		{"computed_metrics", s.store.DeleteMetricsBefore},
	}

	for _, t := range tables {
		n, err := s.sweepTable(ctx, t.delete, cutoff, batchSize)
		deleted[t.name] = n
		if err != nil {
			return deleted, fmt.Errorf("sweep %s: %w", t.name, err)
		}
		if s.cfg.WarnThreshold > 0 && n > s.cfg.WarnThreshold {
			s.logger.Warn("high retention churn",
				"table", t.name,
				"deleted", n,
				"threshold", s.cfg.WarnThreshold,
			)
		}
	}

	s.logger.Info("sweep complete",
		"cutoff", cutoff,
		"events", deleted["market_events"],
		"snapshots", deleted["market_snapshots"],
		"metrics", deleted["computed_metrics"],
	)
	return deleted, nil
}

// sweepTable runs bounded delete batches until a short batch signals the
// table is drained, the batch cap is hit, or the context is cancelled.
func (s *Sweeper) sweepTable(ctx context.Context, del func(context.Context, time.Time, int) (int, error), cutoff time.Time, batchSize int) (int, error) {
	total := 0
	for i := 0; i < maxBatches; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := del(ctx, cutoff, batchSize)
		if err != nil {
			return total, err
		}
		total += n
		if n < batchSize {
			return total, nil
		}
	}
	s.logger.Warn("sweep batch cap reached, remainder deferred", "deleted", total)
	return total, nil
}
