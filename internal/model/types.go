package model

import "time"

// -----------------------------------------------------------------------------
// Event Types
// -----------------------------------------------------------------------------

// EventKind distinguishes the two market event streams.
type EventKind string

const (
	KindListing  EventKind = "listing"
	KindPurchase EventKind = "purchase"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	return k == KindListing || k == KindPurchase
}

// Side is the taker side of a market event.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// MarketEvent is a single listing or purchase observed for a collection.
//
// EventID is unique within (CollectionID, Kind); re-ingesting the same id
// is a no-op. Price is nil when the source did not report one.
type MarketEvent struct {
	EventID      string     // Unique within (CollectionID, Kind)
	CollectionID string     // Owning collection
	Kind         EventKind  // listing or purchase
	Side         Side       // buy or sell
	Price        *float64   // Unit price, nil if unreported
	Quantity     float64    // Number of units (0 if unreported)
	Timestamp    time.Time  // Event time (from the source)
	Maker        string     // Counterparty addresses, optional
	Taker        string
}

// MarketSnapshot is a periodic point-in-time view of a collection's market.
type MarketSnapshot struct {
	SnapshotID   string    // Unique within CollectionID
	CollectionID string
	Timestamp    time.Time
	FloorPrice   *float64 // Lowest active listing price, nil if unknown
	Volume       float64  // Cumulative traded volume
	ListedCount  int      // Active listings at snapshot time
}

// Collection is tracked-collection metadata. Never touched by retention
// sweeps.
type Collection struct {
	ID        string
	Name      string
	Source    string // Marketplace identifier
	CreatedAt time.Time
	UpdatedAt time.Time
}

// -----------------------------------------------------------------------------
// Metric Types
// -----------------------------------------------------------------------------

// MetricWindow is a fixed trailing duration over which events aggregate.
type MetricWindow string

const (
	Window1h  MetricWindow = "1h"
	Window6h  MetricWindow = "6h"
	Window24h MetricWindow = "24h"
	Window72h MetricWindow = "72h"
)

// AllWindows lists the fixed windows in ascending order.
var AllWindows = []MetricWindow{Window1h, Window6h, Window24h, Window72h}

// Duration returns the window's trailing duration.
func (w MetricWindow) Duration() time.Duration {
	switch w {
	case Window1h:
		return time.Hour
	case Window6h:
		return 6 * time.Hour
	case Window24h:
		return 24 * time.Hour
	case Window72h:
		return 72 * time.Hour
	}
	return 0
}

// Valid reports whether w is one of the fixed windows.
func (w MetricWindow) Valid() bool {
	return w.Duration() != 0
}

// WindowStats holds aggregates over one set of in-window events.
//
// Nil pointer fields mean "no signal": the window held no events, or no
// events carried a usable price.
type WindowStats struct {
	PriceChange    *float64 `json:"price_change"`    // (max-first)/first * 100, nil when first price is 0
	AveragePrice   *float64 `json:"average_price"`   // Mean of reported prices
	MedianPrice    *float64 `json:"median_price"`    // Middle of sorted prices
	TradeVolume    float64  `json:"trade_volume"`    // Sum of quantities
	BuyCount       int      `json:"buy_count"`
	SellCount      int      `json:"sell_count"`
	LiquidityRatio *float64 `json:"liquidity_ratio"` // TradeVolume / EventCount
	EventCount     int      `json:"event_count"`
}

// ComputedMetric is the aggregate row for one (collection, window) pair.
// Each refresh overwrites the row; there is exactly one per key.
type ComputedMetric struct {
	CollectionID string       `json:"collection_id"`
	Window       MetricWindow `json:"window"`
	Timestamp    time.Time    `json:"timestamp"` // When this row was computed

	WindowStats

	ListingMetrics  WindowStats `json:"listing_metrics"`  // Listing events only
	PurchaseMetrics WindowStats `json:"purchase_metrics"` // Purchase events only

	// Set only on the 24h row; these are the fields the alert evaluator
	// reads.
	PriceChange24h  *float64 `json:"price_change_24h,omitempty"`
	VolumeChange24h *float64 `json:"volume_change_24h,omitempty"`
}

// -----------------------------------------------------------------------------
// Alert Types
// -----------------------------------------------------------------------------

// AlertType identifies which threshold rule produced an alert.
type AlertType string

const (
	AlertPriceDrop        AlertType = "price_drop"
	AlertVolumeSpike      AlertType = "volume_spike"
	AlertListingDepletion AlertType = "listing_depletion"
)

// Severity is the operator-facing weight of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert records one threshold breach. Created once per breach with the
// cooldown elapsed; only Resolved/ResolvedAt mutate afterwards.
type Alert struct {
	ID           string     `json:"id"`
	CollectionID string     `json:"collection_id"`
	Type         AlertType  `json:"type"`
	Severity     Severity   `json:"severity"`
	Message      string     `json:"message"`
	TriggeredAt  time.Time  `json:"triggered_at"`
	Resolved     bool       `json:"resolved"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// Float returns a pointer to v. Convenience for nullable metric fields.
func Float(v float64) *float64 { return &v }
