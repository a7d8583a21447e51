package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/collectionpulse/engine/internal/model"
)

// ValidationError marks an event or snapshot rejected at intake. The
// collection is not marked dirty and the caller may safely retry with a
// corrected payload.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Store is the persistence surface the ingestor writes to.
type Store interface {
	UpsertEvent(ctx context.Context, ev model.MarketEvent) error
	UpsertSnapshot(ctx context.Context, snap model.MarketSnapshot) error
	UpsertCollection(ctx context.Context, c model.Collection) error
}

// IntakePayload is one collection's worth of crawled data, already
// normalized and source-deduplicated upstream.
type IntakePayload struct {
	CollectionID   string           `json:"collection_id"`
	Metadata       *CollectionMeta  `json:"metadata,omitempty"`
	Snapshot       *SnapshotPayload `json:"snapshot,omitempty"`
	ListingEvents  []EventPayload   `json:"listing_events,omitempty"`
	PurchaseEvents []EventPayload   `json:"purchase_events,omitempty"`
}

// CollectionMeta carries optional collection metadata updates.
type CollectionMeta struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// EventPayload is the wire form of a market event.
type EventPayload struct {
	EventID   string    `json:"event_id"`
	Side      string    `json:"side"`
	Price     *float64  `json:"price"`
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
	Maker     string    `json:"maker,omitempty"`
	Taker     string    `json:"taker,omitempty"`
}

// SnapshotPayload is the wire form of a market snapshot.
type SnapshotPayload struct {
	SnapshotID  string    `json:"snapshot_id"`
	Timestamp   time.Time `json:"timestamp"`
	FloorPrice  *float64  `json:"floor_price"`
	Volume      float64   `json:"volume"`
	ListedCount int       `json:"listed_count"`
}

// Result summarizes one payload's intake.
type Result struct {
	CollectionID      string   `json:"collection_id"`
	ListingsIngested  int      `json:"listings_ingested"`
	PurchasesIngested int      `json:"purchases_ingested"`
	SnapshotIngested  bool     `json:"snapshot_ingested"`
	Failures          []string `json:"failures,omitempty"`
}

// Ingestor validates and stores intake data, marking collections dirty.
type Ingestor struct {
	store  Store
	dirty  *DirtySet
	logger *slog.Logger

	now func() time.Time
}

// New creates an Ingestor.
func New(store Store, dirty *DirtySet, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		store:  store,
		dirty:  dirty,
		logger: logger,
		now:    time.Now,
	}
}

// IngestEvent validates and stores a single event. Returns accepted=false
// with a *ValidationError for malformed events; store errors propagate
// as-is (retry-safe, the upsert is idempotent).
func (in *Ingestor) IngestEvent(ctx context.Context, collectionID string, kind model.EventKind, p EventPayload) (bool, error) {
	if collectionID == "" {
		return false, &ValidationError{Reason: "missing collection id"}
	}
	if !kind.Valid() {
		return false, &ValidationError{Reason: fmt.Sprintf("unknown event kind %q", kind)}
	}
	if p.Timestamp.IsZero() {
		// Without a timestamp there is no identity to synthesize from.
		return false, &ValidationError{Reason: "missing timestamp"}
	}

	ev := model.MarketEvent{
		EventID:      p.EventID,
		CollectionID: collectionID,
		Kind:         kind,
		Side:         model.Side(p.Side),
		Price:        p.Price,
		Quantity:     p.Quantity,
		Timestamp:    p.Timestamp.UTC(),
		Maker:        p.Maker,
		Taker:        p.Taker,
	}
	if ev.EventID == "" {
		ev.EventID = synthesizeID(ev.Timestamp)
		in.logger.Debug("synthesized event id",
			"collection", collectionID,
			"kind", kind,
			"event_id", ev.EventID,
		)
	}

	if err := in.store.UpsertEvent(ctx, ev); err != nil {
		return false, fmt.Errorf("store event: %w", err)
	}

	in.dirty.Mark(collectionID)
	return true, nil
}

// IngestSnapshot validates and stores a single snapshot.
func (in *Ingestor) IngestSnapshot(ctx context.Context, collectionID string, p SnapshotPayload) (bool, error) {
	if collectionID == "" {
		return false, &ValidationError{Reason: "missing collection id"}
	}
	if p.Timestamp.IsZero() {
		return false, &ValidationError{Reason: "missing timestamp"}
	}

	snap := model.MarketSnapshot{
		SnapshotID:   p.SnapshotID,
		CollectionID: collectionID,
		Timestamp:    p.Timestamp.UTC(),
		FloorPrice:   p.FloorPrice,
		Volume:       p.Volume,
		ListedCount:  p.ListedCount,
	}
	if snap.SnapshotID == "" {
		snap.SnapshotID = synthesizeID(snap.Timestamp)
	}

	if err := in.store.UpsertSnapshot(ctx, snap); err != nil {
		return false, fmt.Errorf("store snapshot: %w", err)
	}

	in.dirty.Mark(collectionID)
	return true, nil
}

// IngestPayload processes one intake payload, continuing past per-record
// failures and reporting them in the result.
func (in *Ingestor) IngestPayload(ctx context.Context, p IntakePayload) Result {
	res := Result{CollectionID: p.CollectionID}

	if p.CollectionID == "" {
		res.Failures = append(res.Failures, "payload: missing collection id")
		return res
	}

	if p.Metadata != nil {
		now := in.now().UTC()
		err := in.store.UpsertCollection(ctx, model.Collection{
			ID:        p.CollectionID,
			Name:      p.Metadata.Name,
			Source:    p.Metadata.Source,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			res.Failures = append(res.Failures, fmt.Sprintf("metadata: %v", err))
		}
	}

	if p.Snapshot != nil {
		ok, err := in.IngestSnapshot(ctx, p.CollectionID, *p.Snapshot)
		if err != nil {
			res.Failures = append(res.Failures, fmt.Sprintf("snapshot: %v", err))
		}
		res.SnapshotIngested = ok
	}

	for i, ep := range p.ListingEvents {
		ok, err := in.IngestEvent(ctx, p.CollectionID, model.KindListing, ep)
		if err != nil {
			res.Failures = append(res.Failures, fmt.Sprintf("listing[%d]: %v", i, err))
			continue
		}
		if ok {
			res.ListingsIngested++
		}
	}

	for i, ep := range p.PurchaseEvents {
		ok, err := in.IngestEvent(ctx, p.CollectionID, model.KindPurchase, ep)
		if err != nil {
			res.Failures = append(res.Failures, fmt.Sprintf("purchase[%d]: %v", i, err))
			continue
		}
		if ok {
			res.PurchasesIngested++
		}
	}

	return res
}

// synthesizeID derives a best-effort identity for an event that arrived
// without one. The random suffix means a true duplicate of an id-less event
// stores twice; callers that care about dedup must assign ids.
func synthesizeID(ts time.Time) string {
	return fmt.Sprintf("%d-%s", ts.UnixMicro(), uuid.NewString()[:8])
}
