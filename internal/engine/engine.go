package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/collectionpulse/engine/internal/alert"
	"github.com/collectionpulse/engine/internal/ingest"
	"github.com/collectionpulse/engine/internal/metrics"
	"github.com/collectionpulse/engine/internal/model"
	"github.com/collectionpulse/engine/internal/store"
)

// Dispatcher receives triggered alerts for asynchronous delivery.
type Dispatcher interface {
	Dispatch(a model.Alert)
}

// Engine runs the ingest -> refresh -> evaluate -> dispatch pipeline.
type Engine struct {
	store      store.Store
	dirty      *ingest.DirtySet
	ingestor   *ingest.Ingestor
	refresher  *metrics.Refresher
	evaluator  *alert.Evaluator
	dispatcher Dispatcher
	logger     *slog.Logger

	now func() time.Time
}

// New creates an Engine over already-constructed components.
func New(st store.Store, dirty *ingest.DirtySet, ing *ingest.Ingestor, ref *metrics.Refresher, ev *alert.Evaluator, d Dispatcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      st,
		dirty:      dirty,
		ingestor:   ing,
		refresher:  ref,
		evaluator:  ev,
		dispatcher: d,
		logger:     logger,
		now:        time.Now,
	}
}

// CycleStats summarizes one refresh cycle.
type CycleStats struct {
	Collections     int `json:"collections"`
	Refreshed       int `json:"refreshed"`
	RefreshFailures int `json:"refresh_failures"`
	AlertsTriggered int `json:"alerts_triggered"`
}

// RunCycle drains the dirty set and refreshes every collection it held,
// then evaluates alert rules against each fresh 24h row. Collections that
// failed to refresh are re-marked dirty so the next cycle retries them.
func (e *Engine) RunCycle(ctx context.Context) (CycleStats, error) {
	ids := e.dirty.TakeAll()
	if len(ids) == 0 {
		return CycleStats{}, nil
	}
	return e.runFor(ctx, ids)
}

// RefreshAll marks every known collection and runs a cycle over them. Used
// by the scheduled refresh job and the admin endpoint.
func (e *Engine) RefreshAll(ctx context.Context) (CycleStats, error) {
	ids, err := e.store.CollectionIDs(ctx)
	if err != nil {
		return CycleStats{}, fmt.Errorf("list collections: %w", err)
	}

	// Fold in anything marked dirty since, so those marks are not lost.
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for _, id := range e.dirty.TakeAll() {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		return CycleStats{}, nil
	}
	return e.runFor(ctx, ids)
}

func (e *Engine) runFor(ctx context.Context, ids []string) (CycleStats, error) {
	start := e.now()
	stats := CycleStats{Collections: len(ids)}

	results, failures := e.refresher.Refresh(ctx, ids)
	stats.Refreshed = len(results)
	stats.RefreshFailures = len(failures)

	for id, err := range failures {
		e.logger.Error("collection refresh failed", "collection", id, "error", err)
		e.dirty.Mark(id)
	}

	for id, windows := range results {
		n, err := e.evaluateCollection(ctx, id, windows)
		if err != nil {
			e.logger.Error("alert evaluation failed", "collection", id, "error", err)
			continue
		}
		stats.AlertsTriggered += n
	}

	e.logger.Info("cycle complete",
		"collections", stats.Collections,
		"refreshed", stats.Refreshed,
		"failed", stats.RefreshFailures,
		"alerts", stats.AlertsTriggered,
		"duration", time.Since(start),
	)
	return stats, nil
}

// evaluateCollection applies the alert rules to one collection's fresh 24h
// row and persists and dispatches whatever fired.
func (e *Engine) evaluateCollection(ctx context.Context, id string, windows metrics.WindowMetrics) (int, error) {
	m24, ok := windows[model.Window24h]
	if !ok {
		return 0, nil
	}

	listings, err := e.listingBaseline(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("listing baseline: %w", err)
	}

	alerts := e.evaluator.Evaluate(id, m24, listings)
	for _, a := range alerts {
		if err := e.store.CreateAlert(ctx, a); err != nil {
			// Cooldown is already recorded; dropping here means the breach
			// stays suppressed until it cools down again.
			e.logger.Error("persist alert failed",
				"collection", id,
				"type", a.Type,
				"error", err,
			)
			continue
		}
		e.dispatcher.Dispatch(a)
	}
	return len(alerts), nil
}

// listingBaseline derives the depletion-rule input from the two most recent
// snapshots. Fewer than two snapshots means no baseline.
func (e *Engine) listingBaseline(ctx context.Context, id string) (*alert.ListingCounts, error) {
	snaps, err := e.store.RecentSnapshots(ctx, id, 2)
	if err != nil {
		return nil, err
	}
	if len(snaps) < 2 {
		return nil, nil
	}
	return &alert.ListingCounts{
		Previous: snaps[1].ListedCount,
		Current:  snaps[0].ListedCount,
	}, nil
}

// IntakeSummary reports one intake batch.
type IntakeSummary struct {
	CollectionsUpdated int      `json:"collections_updated"`
	ListingsIngested   int      `json:"listings_ingested"`
	PurchasesIngested  int      `json:"purchases_ingested"`
	SnapshotsIngested  int      `json:"snapshots_ingested"`
	AlertsTriggered    int      `json:"alerts_triggered"`
	Failures           []string `json:"failures,omitempty"`
	DurationMs         int64    `json:"duration_ms"`
}

// ProcessIntake ingests a batch of payloads and immediately runs a cycle
// over the collections they touched. Per-record failures are collected,
// never fatal; the batch reports partial success.
func (e *Engine) ProcessIntake(ctx context.Context, payloads []ingest.IntakePayload) (IntakeSummary, error) {
	start := e.now()
	var sum IntakeSummary

	touched := make(map[string]struct{})
	for _, p := range payloads {
		res := e.ingestor.IngestPayload(ctx, p)

		sum.ListingsIngested += res.ListingsIngested
		sum.PurchasesIngested += res.PurchasesIngested
		if res.SnapshotIngested {
			sum.SnapshotsIngested++
		}
		for _, f := range res.Failures {
			sum.Failures = append(sum.Failures, fmt.Sprintf("%s: %s", p.CollectionID, f))
		}
		if res.ListingsIngested+res.PurchasesIngested > 0 || res.SnapshotIngested {
			touched[p.CollectionID] = struct{}{}
		}
	}
	sum.CollectionsUpdated = len(touched)

	stats, err := e.RunCycle(ctx)
	if err != nil {
		return sum, fmt.Errorf("run cycle: %w", err)
	}
	sum.AlertsTriggered = stats.AlertsTriggered
	sum.DurationMs = time.Since(start).Milliseconds()

	e.logger.Info("intake processed",
		"payloads", len(payloads),
		"collections", sum.CollectionsUpdated,
		"listings", sum.ListingsIngested,
		"purchases", sum.PurchasesIngested,
		"failures", len(sum.Failures),
		"duration_ms", sum.DurationMs,
	)
	return sum, nil
}
