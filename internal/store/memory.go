package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/collectionpulse/engine/internal/model"
)

// Memory is an in-memory Store. Safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	events      map[string]map[string]model.MarketEvent    // collectionID -> kind|eventID -> event
	snapshots   map[string]map[string]model.MarketSnapshot // collectionID -> snapshotID -> snapshot
	collections map[string]model.Collection
	metrics     map[string]map[model.MetricWindow]model.ComputedMetric
	alerts      map[string]model.Alert
	alertOrder  []string // Alert ids in creation order
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		events:      make(map[string]map[string]model.MarketEvent),
		snapshots:   make(map[string]map[string]model.MarketSnapshot),
		collections: make(map[string]model.Collection),
		metrics:     make(map[string]map[model.MetricWindow]model.ComputedMetric),
		alerts:      make(map[string]model.Alert),
	}
}

func eventKey(ev model.MarketEvent) string {
	return string(ev.Kind) + "|" + ev.EventID
}

// UpsertEvent stores an event, idempotent by (collection, kind, event id).
func (m *Memory) UpsertEvent(ctx context.Context, ev model.MarketEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKey, ok := m.events[ev.CollectionID]
	if !ok {
		byKey = make(map[string]model.MarketEvent)
		m.events[ev.CollectionID] = byKey
	}
	byKey[eventKey(ev)] = ev
	return nil
}

// UpsertSnapshot stores a snapshot, idempotent by (collection, snapshot id).
func (m *Memory) UpsertSnapshot(ctx context.Context, snap model.MarketSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.snapshots[snap.CollectionID]
	if !ok {
		byID = make(map[string]model.MarketSnapshot)
		m.snapshots[snap.CollectionID] = byID
	}
	byID[snap.SnapshotID] = snap
	return nil
}

// EventsSince returns events with timestamp >= since, oldest first.
func (m *Memory) EventsSince(ctx context.Context, collectionID string, since time.Time) ([]model.MarketEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.MarketEvent
	for _, ev := range m.events[collectionID] {
		if !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// RecentSnapshots returns up to limit snapshots, newest first.
func (m *Memory) RecentSnapshots(ctx context.Context, collectionID string, limit int) ([]model.MarketSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := make([]model.MarketSnapshot, 0, len(m.snapshots[collectionID]))
	for _, s := range m.snapshots[collectionID] {
		snaps = append(snaps, s)
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Timestamp.After(snaps[j].Timestamp)
	})
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

// CollectionIDs returns every collection id seen by any table.
func (m *Memory) CollectionIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for id := range m.events {
		seen[id] = struct{}{}
	}
	for id := range m.snapshots {
		seen[id] = struct{}{}
	}
	for id := range m.collections {
		seen[id] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// UpsertCollection stores collection metadata.
func (m *Memory) UpsertCollection(ctx context.Context, c model.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.collections[c.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	}
	m.collections[c.ID] = c
	return nil
}

// Collection returns collection metadata or ErrNotFound.
func (m *Memory) Collection(ctx context.Context, id string) (model.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[id]
	if !ok {
		return model.Collection{}, ErrNotFound
	}
	return c, nil
}

// UpsertMetric overwrites the row for (collection, window).
func (m *Memory) UpsertMetric(ctx context.Context, metric model.ComputedMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byWindow, ok := m.metrics[metric.CollectionID]
	if !ok {
		byWindow = make(map[model.MetricWindow]model.ComputedMetric)
		m.metrics[metric.CollectionID] = byWindow
	}
	byWindow[metric.Window] = metric
	return nil
}

// Metric returns one (collection, window) row or ErrNotFound.
func (m *Memory) Metric(ctx context.Context, collectionID string, w model.MetricWindow) (model.ComputedMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metric, ok := m.metrics[collectionID][w]
	if !ok {
		return model.ComputedMetric{}, ErrNotFound
	}
	return metric, nil
}

// MetricsFor returns all window rows for a collection, in window order.
func (m *Memory) MetricsFor(ctx context.Context, collectionID string) ([]model.ComputedMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byWindow, ok := m.metrics[collectionID]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]model.ComputedMetric, 0, len(byWindow))
	for _, w := range model.AllWindows {
		if metric, ok := byWindow[w]; ok {
			out = append(out, metric)
		}
	}
	return out, nil
}

// CreateAlert stores a new alert.
func (m *Memory) CreateAlert(ctx context.Context, a model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.alerts[a.ID]; !exists {
		m.alertOrder = append(m.alertOrder, a.ID)
	}
	m.alerts[a.ID] = a
	return nil
}

// Alerts returns matching alerts plus the pre-pagination match count.
func (m *Memory) Alerts(ctx context.Context, f AlertFilter) ([]model.Alert, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []model.Alert
	for _, id := range m.alertOrder {
		a := m.alerts[id]
		if f.CollectionID != "" && a.CollectionID != f.CollectionID {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.Resolved != nil && a.Resolved != *f.Resolved {
			continue
		}
		matched = append(matched, a)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if f.SortAsc {
			return matched[i].TriggeredAt.Before(matched[j].TriggeredAt)
		}
		return matched[i].TriggeredAt.After(matched[j].TriggeredAt)
	})

	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[f.Offset:]
		}
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

// ResolveAlert marks an alert resolved, keeping the first resolution time.
func (m *Memory) ResolveAlert(ctx context.Context, id string, at time.Time) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return model.Alert{}, ErrNotFound
	}
	if !a.Resolved {
		a.Resolved = true
		a.ResolvedAt = &at
		m.alerts[id] = a
	}
	return a, nil
}

// DeleteEventsBefore deletes up to limit events strictly older than cutoff.
func (m *Memory) DeleteEventsBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for cid, byKey := range m.events {
		for key, ev := range byKey {
			if deleted >= limit {
				return deleted, nil
			}
			if ev.Timestamp.Before(cutoff) {
				delete(byKey, key)
				deleted++
			}
		}
		if len(byKey) == 0 {
			delete(m.events, cid)
		}
	}
	return deleted, nil
}

// DeleteSnapshotsBefore deletes up to limit snapshots strictly older than
// cutoff.
func (m *Memory) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for cid, byID := range m.snapshots {
		for id, s := range byID {
			if deleted >= limit {
				return deleted, nil
			}
			if s.Timestamp.Before(cutoff) {
				delete(byID, id)
				deleted++
			}
		}
		if len(byID) == 0 {
			delete(m.snapshots, cid)
		}
	}
	return deleted, nil
}

// DeleteMetricsBefore deletes up to limit metric rows computed strictly
// before cutoff.
func (m *Memory) DeleteMetricsBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for cid, byWindow := range m.metrics {
		for w, metric := range byWindow {
			if deleted >= limit {
				return deleted, nil
			}
			if metric.Timestamp.Before(cutoff) {
				delete(byWindow, w)
				deleted++
			}
		}
		if len(byWindow) == 0 {
			delete(m.metrics, cid)
		}
	}
	return deleted, nil
}

// Ping always succeeds for the memory store.
func (m *Memory) Ping(ctx context.Context) error { return nil }

// Counts returns per-table row counts.
func (m *Memory) Counts(ctx context.Context) (TableCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := TableCounts{
		Collections: len(m.collections),
		Alerts:      len(m.alerts),
	}
	for _, byKey := range m.events {
		c.Events += len(byKey)
	}
	for _, byID := range m.snapshots {
		c.Snapshots += len(byID)
	}
	for _, byWindow := range m.metrics {
		c.Metrics += len(byWindow)
	}
	return c, nil
}
