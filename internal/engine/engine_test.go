package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/collectionpulse/engine/internal/alert"
	"github.com/collectionpulse/engine/internal/ingest"
	"github.com/collectionpulse/engine/internal/metrics"
	"github.com/collectionpulse/engine/internal/model"
	"github.com/collectionpulse/engine/internal/store"
)

type capturingDispatcher struct {
	mu     sync.Mutex
	alerts []model.Alert
}

func (d *capturingDispatcher) Dispatch(a model.Alert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, a)
}

func (d *capturingDispatcher) dispatched() []model.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.Alert(nil), d.alerts...)
}

type testRig struct {
	engine     *Engine
	store      *store.Memory
	dirty      *ingest.DirtySet
	dispatcher *capturingDispatcher
}

func newTestRig(t *testing.T, thresholds alert.Config) *testRig {
	t.Helper()

	mem := store.NewMemory()
	dirty := ingest.NewDirtySet()
	dispatcher := &capturingDispatcher{}

	e := New(
		mem,
		dirty,
		ingest.New(mem, dirty, nil),
		metrics.NewRefresher(metrics.Config{Workers: 2}, mem, mem, nil),
		alert.NewEvaluator(thresholds, alert.NewMemoryCooldowns(), nil),
		dispatcher,
		nil,
	)
	return &testRig{engine: e, store: mem, dirty: dirty, dispatcher: dispatcher}
}

func purchasePayload(n int, quantity float64) []ingest.EventPayload {
	evs := make([]ingest.EventPayload, n)
	for i := range evs {
		evs[i] = ingest.EventPayload{
			EventID:   fmt.Sprintf("p-%d", i),
			Side:      "buy",
			Price:     model.Float(100 + float64(i)),
			Quantity:  quantity,
			Timestamp: time.Now().Add(-time.Duration(i+1) * time.Minute),
		}
	}
	return evs
}

func TestProcessIntake_FullPipeline(t *testing.T) {
	rig := newTestRig(t, alert.Config{
		PriceDropPct:        10,
		VolumeSpikePct:      10, // 3 purchases of quantity 5 total 15, above this
		ListingDepletionPct: 50,
		Cooldown:            time.Hour,
	})
	ctx := context.Background()

	sum, err := rig.engine.ProcessIntake(ctx, []ingest.IntakePayload{{
		CollectionID:   "col-1",
		Metadata:       &ingest.CollectionMeta{Name: "Pixel Apes", Source: "marketwatch"},
		PurchaseEvents: purchasePayload(3, 5),
		Snapshot: &ingest.SnapshotPayload{
			SnapshotID:  "snap-1",
			Timestamp:   time.Now(),
			FloorPrice:  model.Float(99),
			ListedCount: 400,
		},
	}})
	if err != nil {
		t.Fatalf("ProcessIntake failed: %v", err)
	}

	if sum.CollectionsUpdated != 1 || sum.PurchasesIngested != 3 || sum.SnapshotsIngested != 1 {
		t.Errorf("summary = %+v, want 1 collection, 3 purchases, 1 snapshot", sum)
	}
	if len(sum.Failures) != 0 {
		t.Errorf("failures = %v, want none", sum.Failures)
	}

	rows, err := rig.store.MetricsFor(ctx, "col-1")
	if err != nil {
		t.Fatalf("MetricsFor failed: %v", err)
	}
	if len(rows) != len(model.AllWindows) {
		t.Errorf("metric rows = %d, want %d", len(rows), len(model.AllWindows))
	}

	if sum.AlertsTriggered != 1 {
		t.Fatalf("alerts triggered = %d, want 1 volume spike", sum.AlertsTriggered)
	}

	stored, total, err := rig.store.Alerts(ctx, store.AlertFilter{CollectionID: "col-1"})
	if err != nil {
		t.Fatalf("Alerts failed: %v", err)
	}
	if total != 1 || stored[0].Type != model.AlertVolumeSpike {
		t.Errorf("stored alerts = %d/%+v, want one volume_spike", total, stored)
	}

	dispatched := rig.dispatcher.dispatched()
	if len(dispatched) != 1 || dispatched[0].Type != model.AlertVolumeSpike {
		t.Errorf("dispatched = %+v, want the same volume_spike", dispatched)
	}
}

func TestProcessIntake_PartialFailureStillRefreshes(t *testing.T) {
	rig := newTestRig(t, alert.Config{VolumeSpikePct: 1000, Cooldown: time.Hour})
	ctx := context.Background()

	good := purchasePayload(2, 1)
	bad := ingest.EventPayload{EventID: "no-ts", Side: "buy", Quantity: 1}

	sum, err := rig.engine.ProcessIntake(ctx, []ingest.IntakePayload{{
		CollectionID:   "col-1",
		PurchaseEvents: append(good, bad),
	}})
	if err != nil {
		t.Fatalf("ProcessIntake failed: %v", err)
	}

	if sum.PurchasesIngested != 2 {
		t.Errorf("purchases = %d, want 2", sum.PurchasesIngested)
	}
	if len(sum.Failures) != 1 {
		t.Errorf("failures = %v, want exactly the timestamp-less event", sum.Failures)
	}

	if _, err := rig.store.Metric(ctx, "col-1", model.Window24h); err != nil {
		t.Errorf("Metric failed: %v, want refreshed row despite partial failure", err)
	}
}

func TestRunCycle_EmptyDirtySet(t *testing.T) {
	rig := newTestRig(t, alert.Config{Cooldown: time.Hour})

	stats, err := rig.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if stats != (CycleStats{}) {
		t.Errorf("stats = %+v, want zero cycle", stats)
	}
}

func TestRunCycle_ListingDepletion(t *testing.T) {
	rig := newTestRig(t, alert.Config{
		ListingDepletionPct: 20,
		VolumeSpikePct:      1e9,
		Cooldown:            time.Hour,
	})
	ctx := context.Background()

	for i, count := range []int{100, 70} { // 30% depletion
		_, err := rig.engine.ingestor.IngestSnapshot(ctx, "col-1", ingest.SnapshotPayload{
			SnapshotID:  fmt.Sprintf("snap-%d", i),
			Timestamp:   time.Now().Add(time.Duration(i-2) * time.Minute),
			ListedCount: count,
		})
		if err != nil {
			t.Fatalf("IngestSnapshot failed: %v", err)
		}
	}

	stats, err := rig.engine.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if stats.AlertsTriggered != 1 {
		t.Fatalf("alerts = %d, want 1 depletion", stats.AlertsTriggered)
	}

	dispatched := rig.dispatcher.dispatched()
	if len(dispatched) != 1 || dispatched[0].Type != model.AlertListingDepletion {
		t.Errorf("dispatched = %+v, want listing_depletion", dispatched)
	}
	if dispatched[0].Severity != model.SeverityCritical {
		t.Errorf("severity = %s, want critical", dispatched[0].Severity)
	}
}

func TestRunCycle_SingleSnapshotNoBaseline(t *testing.T) {
	rig := newTestRig(t, alert.Config{ListingDepletionPct: 1, Cooldown: time.Hour})
	ctx := context.Background()

	_, err := rig.engine.ingestor.IngestSnapshot(ctx, "col-1", ingest.SnapshotPayload{
		Timestamp:   time.Now(),
		ListedCount: 0,
	})
	if err != nil {
		t.Fatalf("IngestSnapshot failed: %v", err)
	}

	stats, err := rig.engine.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if stats.AlertsTriggered != 0 {
		t.Errorf("alerts = %d, want 0 without a two-snapshot baseline", stats.AlertsTriggered)
	}
}

// failingEvents breaks EventsSince for one collection.
type failingEvents struct {
	*store.Memory
	badID string
}

func (f *failingEvents) EventsSince(ctx context.Context, collectionID string, since time.Time) ([]model.MarketEvent, error) {
	if collectionID == f.badID {
		return nil, errors.New("storage offline")
	}
	return f.Memory.EventsSince(ctx, collectionID, since)
}

func TestRunCycle_RefreshFailureRemarksDirty(t *testing.T) {
	mem := store.NewMemory()
	dirty := ingest.NewDirtySet()
	dispatcher := &capturingDispatcher{}

	e := New(
		mem,
		dirty,
		ingest.New(mem, dirty, nil),
		metrics.NewRefresher(metrics.Config{Workers: 2}, &failingEvents{Memory: mem, badID: "col-bad"}, mem, nil),
		alert.NewEvaluator(alert.Config{Cooldown: time.Hour}, alert.NewMemoryCooldowns(), nil),
		dispatcher,
		nil,
	)
	ctx := context.Background()

	for _, id := range []string{"col-ok", "col-bad"} {
		_, err := e.ingestor.IngestEvent(ctx, id, model.KindListing, ingest.EventPayload{
			Side:      "sell",
			Quantity:  1,
			Timestamp: time.Now(),
		})
		if err != nil {
			t.Fatalf("IngestEvent failed: %v", err)
		}
	}

	stats, err := e.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if stats.Refreshed != 1 || stats.RefreshFailures != 1 {
		t.Errorf("stats = %+v, want 1 refreshed / 1 failed", stats)
	}

	// The failed collection is queued for the next cycle.
	requeued := dirty.TakeAll()
	if len(requeued) != 1 || requeued[0] != "col-bad" {
		t.Errorf("requeued = %v, want only col-bad", requeued)
	}
}

func TestRefreshAll_CoversKnownCollections(t *testing.T) {
	rig := newTestRig(t, alert.Config{VolumeSpikePct: 1e9, Cooldown: time.Hour})
	ctx := context.Background()

	for _, id := range []string{"col-a", "col-b"} {
		_, err := rig.engine.ingestor.IngestEvent(ctx, id, model.KindPurchase, ingest.EventPayload{
			Side:      "buy",
			Quantity:  2,
			Timestamp: time.Now(),
		})
		if err != nil {
			t.Fatalf("IngestEvent failed: %v", err)
		}
	}
	// Drain marks so RefreshAll has to discover them from the store.
	rig.dirty.TakeAll()

	stats, err := rig.engine.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}
	if stats.Collections != 2 || stats.Refreshed != 2 {
		t.Errorf("stats = %+v, want both collections refreshed", stats)
	}

	for _, id := range []string{"col-a", "col-b"} {
		if _, err := rig.store.Metric(ctx, id, model.Window1h); err != nil {
			t.Errorf("Metric(%s) failed: %v", id, err)
		}
	}
}
