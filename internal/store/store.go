package store

import (
	"context"
	"errors"
	"time"

	"github.com/collectionpulse/engine/internal/model"
)

// ErrNotFound is returned when a requested collection, metric or alert does
// not exist.
var ErrNotFound = errors.New("not found")

// EventStore holds raw market events and snapshots per collection.
type EventStore interface {
	// UpsertEvent stores an event. Re-upserting the same
	// (collection, kind, event id) is a no-op.
	UpsertEvent(ctx context.Context, ev model.MarketEvent) error

	// UpsertSnapshot stores a snapshot, idempotent by
	// (collection, snapshot id).
	UpsertSnapshot(ctx context.Context, snap model.MarketSnapshot) error

	// EventsSince returns the collection's events with timestamp >= since,
	// ordered by timestamp ascending.
	EventsSince(ctx context.Context, collectionID string, since time.Time) ([]model.MarketEvent, error)

	// RecentSnapshots returns up to limit snapshots for the collection,
	// newest first.
	RecentSnapshots(ctx context.Context, collectionID string, limit int) ([]model.MarketSnapshot, error)

	// CollectionIDs returns every collection id known to the store.
	CollectionIDs(ctx context.Context) ([]string, error)
}

// CollectionStore holds tracked-collection metadata. Collection rows are
// never touched by retention sweeps.
type CollectionStore interface {
	UpsertCollection(ctx context.Context, c model.Collection) error
	Collection(ctx context.Context, id string) (model.Collection, error)
}

// MetricsStore holds computed aggregates, one row per (collection, window).
type MetricsStore interface {
	// UpsertMetric overwrites the row for (metric.CollectionID, metric.Window).
	UpsertMetric(ctx context.Context, m model.ComputedMetric) error

	// Metric returns the row for one (collection, window) pair.
	Metric(ctx context.Context, collectionID string, w model.MetricWindow) (model.ComputedMetric, error)

	// MetricsFor returns all window rows for a collection.
	MetricsFor(ctx context.Context, collectionID string) ([]model.ComputedMetric, error)
}

// AlertFilter selects alerts for listing. Zero values mean "any".
type AlertFilter struct {
	CollectionID string
	Type         model.AlertType
	Severity     model.Severity
	Resolved     *bool
	Limit        int
	Offset       int
	SortAsc      bool // Sort by triggered_at; default is newest first
}

// AlertStore holds triggered alerts. Alert rows are never touched by
// retention sweeps.
type AlertStore interface {
	CreateAlert(ctx context.Context, a model.Alert) error

	// Alerts returns matching alerts plus the total match count before
	// pagination.
	Alerts(ctx context.Context, f AlertFilter) ([]model.Alert, int, error)

	// ResolveAlert marks an alert resolved. Resolving twice is a no-op that
	// keeps the original ResolvedAt.
	ResolveAlert(ctx context.Context, id string, at time.Time) (model.Alert, error)
}

// RetentionStore exposes bounded batch deletion for the sweeper. Each call
// deletes at most limit rows strictly older than cutoff and reports how
// many went.
type RetentionStore interface {
	DeleteEventsBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
	DeleteMetricsBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// TableCounts reports per-table row counts for health reporting.
type TableCounts struct {
	Collections int `json:"collections"`
	Events      int `json:"events"`
	Snapshots   int `json:"snapshots"`
	Metrics     int `json:"metrics"`
	Alerts      int `json:"alerts"`
}

// Store is the full persistence surface the engine wires together.
type Store interface {
	EventStore
	CollectionStore
	MetricsStore
	AlertStore
	RetentionStore

	// Counts returns per-table row counts.
	Counts(ctx context.Context) (TableCounts, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}
