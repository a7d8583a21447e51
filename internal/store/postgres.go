package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/collectionpulse/engine/internal/model"
)

// Postgres is a pgx-backed Store.
//
// Events and snapshots insert with ON CONFLICT DO NOTHING, so re-ingesting
// a caller-assigned id is a no-op. Metric rows use ON CONFLICT DO UPDATE
// (one row per collection+window). Retention deletes are bounded by ctid
// subselects so a sweep batch never locks more than its batch size.
type Postgres struct {
	db *pgxpool.Pool

	statsMu sync.Mutex
	stats   PostgresStats
}

// PostgresStats counts writes since process start.
type PostgresStats struct {
	Inserts   int64
	Conflicts int64
}

// NewPostgres creates a Postgres store on an existing pool.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the engine tables if they do not exist. Schema
// migration proper is handled outside the engine; this covers fresh
// environments and tests.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	source     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS market_events (
	collection_id TEXT NOT NULL,
	kind          TEXT NOT NULL,
	event_id      TEXT NOT NULL,
	side          TEXT NOT NULL DEFAULT '',
	price         DOUBLE PRECISION,
	quantity      DOUBLE PRECISION NOT NULL DEFAULT 0,
	ts            TIMESTAMPTZ NOT NULL,
	maker         TEXT NOT NULL DEFAULT '',
	taker         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (collection_id, kind, event_id)
);
CREATE INDEX IF NOT EXISTS market_events_ts_idx ON market_events (collection_id, ts);

CREATE TABLE IF NOT EXISTS market_snapshots (
	collection_id TEXT NOT NULL,
	snapshot_id   TEXT NOT NULL,
	ts            TIMESTAMPTZ NOT NULL,
	floor_price   DOUBLE PRECISION,
	volume        DOUBLE PRECISION NOT NULL DEFAULT 0,
	listed_count  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (collection_id, snapshot_id)
);
CREATE INDEX IF NOT EXISTS market_snapshots_ts_idx ON market_snapshots (collection_id, ts);

CREATE TABLE IF NOT EXISTS computed_metrics (
	collection_id TEXT NOT NULL,
	win           TEXT NOT NULL,
	ts            TIMESTAMPTZ NOT NULL,
	data          JSONB NOT NULL,
	PRIMARY KEY (collection_id, win)
);

CREATE TABLE IF NOT EXISTS alerts (
	id            TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL,
	alert_type    TEXT NOT NULL,
	severity      TEXT NOT NULL,
	message       TEXT NOT NULL,
	triggered_at  TIMESTAMPTZ NOT NULL,
	resolved      BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS alerts_collection_idx ON alerts (collection_id, triggered_at);
`

func (p *Postgres) recordWrite(rowsAffected int64) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	if rowsAffected == 0 {
		p.stats.Conflicts++
	} else {
		p.stats.Inserts++
	}
}

// Stats returns write counters since process start.
func (p *Postgres) Stats() PostgresStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// UpsertEvent stores an event, idempotent by (collection, kind, event id).
func (p *Postgres) UpsertEvent(ctx context.Context, ev model.MarketEvent) error {
	ct, err := p.db.Exec(ctx, `
		INSERT INTO market_events (collection_id, kind, event_id, side, price, quantity, ts, maker, taker)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (collection_id, kind, event_id) DO NOTHING
	`, ev.CollectionID, ev.Kind, ev.EventID, ev.Side, ev.Price, ev.Quantity, ev.Timestamp, ev.Maker, ev.Taker)
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	p.recordWrite(ct.RowsAffected())
	return nil
}

// UpsertSnapshot stores a snapshot, idempotent by (collection, snapshot id).
func (p *Postgres) UpsertSnapshot(ctx context.Context, snap model.MarketSnapshot) error {
	ct, err := p.db.Exec(ctx, `
		INSERT INTO market_snapshots (collection_id, snapshot_id, ts, floor_price, volume, listed_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (collection_id, snapshot_id) DO NOTHING
	`, snap.CollectionID, snap.SnapshotID, snap.Timestamp, snap.FloorPrice, snap.Volume, snap.ListedCount)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	p.recordWrite(ct.RowsAffected())
	return nil
}

// EventsSince returns events with ts >= since, oldest first.
func (p *Postgres) EventsSince(ctx context.Context, collectionID string, since time.Time) ([]model.MarketEvent, error) {
	rows, err := p.db.Query(ctx, `
		SELECT collection_id, kind, event_id, side, price, quantity, ts, maker, taker
		FROM market_events
		WHERE collection_id = $1 AND ts >= $2
		ORDER BY ts ASC
	`, collectionID, since)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []model.MarketEvent
	for rows.Next() {
		var ev model.MarketEvent
		if err := rows.Scan(&ev.CollectionID, &ev.Kind, &ev.EventID, &ev.Side,
			&ev.Price, &ev.Quantity, &ev.Timestamp, &ev.Maker, &ev.Taker); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RecentSnapshots returns up to limit snapshots, newest first.
func (p *Postgres) RecentSnapshots(ctx context.Context, collectionID string, limit int) ([]model.MarketSnapshot, error) {
	rows, err := p.db.Query(ctx, `
		SELECT collection_id, snapshot_id, ts, floor_price, volume, listed_count
		FROM market_snapshots
		WHERE collection_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`, collectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.MarketSnapshot
	for rows.Next() {
		var s model.MarketSnapshot
		if err := rows.Scan(&s.CollectionID, &s.SnapshotID, &s.Timestamp,
			&s.FloorPrice, &s.Volume, &s.ListedCount); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CollectionIDs returns every collection id seen by any table.
func (p *Postgres) CollectionIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id FROM collections
		UNION
		SELECT DISTINCT collection_id FROM market_events
		UNION
		SELECT DISTINCT collection_id FROM market_snapshots
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query collection ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan collection id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertCollection stores collection metadata, preserving created_at.
func (p *Postgres) UpsertCollection(ctx context.Context, c model.Collection) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO collections (id, name, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			source = EXCLUDED.source,
			updated_at = EXCLUDED.updated_at
	`, c.ID, c.Name, c.Source, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert collection: %w", err)
	}
	return nil
}

// Collection returns collection metadata or ErrNotFound.
func (p *Postgres) Collection(ctx context.Context, id string) (model.Collection, error) {
	var c model.Collection
	err := p.db.QueryRow(ctx, `
		SELECT id, name, source, created_at, updated_at FROM collections WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Source, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Collection{}, ErrNotFound
	}
	if err != nil {
		return model.Collection{}, fmt.Errorf("query collection: %w", err)
	}
	return c, nil
}

// UpsertMetric overwrites the row for (collection, window). The full metric
// is stored as JSONB; the key columns exist for conflict targets and sweeps.
func (p *Postgres) UpsertMetric(ctx context.Context, m model.ComputedMetric) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal metric: %w", err)
	}

	_, err = p.db.Exec(ctx, `
		INSERT INTO computed_metrics (collection_id, win, ts, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection_id, win) DO UPDATE SET
			ts = EXCLUDED.ts,
			data = EXCLUDED.data
	`, m.CollectionID, m.Window, m.Timestamp, data)
	if err != nil {
		return fmt.Errorf("upsert metric: %w", err)
	}
	return nil
}

// Metric returns one (collection, window) row or ErrNotFound.
func (p *Postgres) Metric(ctx context.Context, collectionID string, w model.MetricWindow) (model.ComputedMetric, error) {
	var data []byte
	err := p.db.QueryRow(ctx, `
		SELECT data FROM computed_metrics WHERE collection_id = $1 AND win = $2
	`, collectionID, w).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ComputedMetric{}, ErrNotFound
	}
	if err != nil {
		return model.ComputedMetric{}, fmt.Errorf("query metric: %w", err)
	}

	var m model.ComputedMetric
	if err := json.Unmarshal(data, &m); err != nil {
		return model.ComputedMetric{}, fmt.Errorf("unmarshal metric: %w", err)
	}
	return m, nil
}

// MetricsFor returns all window rows for a collection, or ErrNotFound when
// none exist.
func (p *Postgres) MetricsFor(ctx context.Context, collectionID string) ([]model.ComputedMetric, error) {
	rows, err := p.db.Query(ctx, `
		SELECT data FROM computed_metrics WHERE collection_id = $1
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	byWindow := make(map[model.MetricWindow]model.ComputedMetric)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		var m model.ComputedMetric
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("unmarshal metric: %w", err)
		}
		byWindow[m.Window] = m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(byWindow) == 0 {
		return nil, ErrNotFound
	}

	out := make([]model.ComputedMetric, 0, len(byWindow))
	for _, w := range model.AllWindows {
		if m, ok := byWindow[w]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// CreateAlert stores a new alert.
func (p *Postgres) CreateAlert(ctx context.Context, a model.Alert) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO alerts (id, collection_id, alert_type, severity, message, triggered_at, resolved, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, a.ID, a.CollectionID, a.Type, a.Severity, a.Message, a.TriggeredAt, a.Resolved, a.ResolvedAt)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// Alerts returns matching alerts plus the pre-pagination match count.
func (p *Postgres) Alerts(ctx context.Context, f AlertFilter) ([]model.Alert, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	add := func(clause string, v any) {
		args = append(args, v)
		where += fmt.Sprintf(clause, len(args))
	}

	if f.CollectionID != "" {
		add(" AND collection_id = $%d", f.CollectionID)
	}
	if f.Type != "" {
		add(" AND alert_type = $%d", f.Type)
	}
	if f.Severity != "" {
		add(" AND severity = $%d", f.Severity)
	}
	if f.Resolved != nil {
		add(" AND resolved = $%d", *f.Resolved)
	}

	var total int
	if err := p.db.QueryRow(ctx, "SELECT COUNT(*) FROM alerts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	order := " ORDER BY triggered_at DESC"
	if f.SortAsc {
		order = " ORDER BY triggered_at ASC"
	}

	q := "SELECT id, collection_id, alert_type, severity, message, triggered_at, resolved, resolved_at FROM alerts" + where + order
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(&a.ID, &a.CollectionID, &a.Type, &a.Severity,
			&a.Message, &a.TriggeredAt, &a.Resolved, &a.ResolvedAt); err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// ResolveAlert marks an alert resolved, keeping the first resolution time.
func (p *Postgres) ResolveAlert(ctx context.Context, id string, at time.Time) (model.Alert, error) {
	if _, err := p.db.Exec(ctx, `
		UPDATE alerts SET resolved = TRUE, resolved_at = $2
		WHERE id = $1 AND NOT resolved
	`, id, at); err != nil {
		return model.Alert{}, fmt.Errorf("resolve alert: %w", err)
	}

	var a model.Alert
	err := p.db.QueryRow(ctx, `
		SELECT id, collection_id, alert_type, severity, message, triggered_at, resolved, resolved_at
		FROM alerts WHERE id = $1
	`, id).Scan(&a.ID, &a.CollectionID, &a.Type, &a.Severity,
		&a.Message, &a.TriggeredAt, &a.Resolved, &a.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Alert{}, ErrNotFound
	}
	if err != nil {
		return model.Alert{}, fmt.Errorf("query alert: %w", err)
	}
	return a, nil
}

// DeleteEventsBefore deletes up to limit events strictly older than cutoff.
func (p *Postgres) DeleteEventsBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	return p.deleteBefore(ctx, "market_events", cutoff, limit)
}

// DeleteSnapshotsBefore deletes up to limit snapshots strictly older than
// cutoff.
func (p *Postgres) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	return p.deleteBefore(ctx, "market_snapshots", cutoff, limit)
}

// DeleteMetricsBefore deletes up to limit metric rows computed strictly
// before cutoff.
func (p *Postgres) DeleteMetricsBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	return p.deleteBefore(ctx, "computed_metrics", cutoff, limit)
}

func (p *Postgres) deleteBefore(ctx context.Context, table string, cutoff time.Time, limit int) (int, error) {
	// table is one of our fixed table names, never user input.
	q := fmt.Sprintf(`
		DELETE FROM %s WHERE ctid IN (
			SELECT ctid FROM %s WHERE ts < $1 LIMIT $2
		)
	`, table, table)

	ct, err := p.db.Exec(ctx, q, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return int(ct.RowsAffected()), nil
}

// Ping verifies the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// Counts returns per-table row counts. Exact counts, cheap at this scale;
// revisit if event volume ever makes COUNT(*) a hot path.
func (p *Postgres) Counts(ctx context.Context) (TableCounts, error) {
	var c TableCounts
	row := p.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM collections),
			(SELECT COUNT(*) FROM market_events),
			(SELECT COUNT(*) FROM market_snapshots),
			(SELECT COUNT(*) FROM computed_metrics),
			(SELECT COUNT(*) FROM alerts)
	`)
	if err := row.Scan(&c.Collections, &c.Events, &c.Snapshots, &c.Metrics, &c.Alerts); err != nil {
		return TableCounts{}, fmt.Errorf("count tables: %w", err)
	}
	return c, nil
}
