package metrics

import (
	"sort"
	"time"

	"github.com/collectionpulse/engine/internal/model"
)

// Compute aggregates a collection's events into one row per fixed window.
// events must be ordered by timestamp ascending; rows are stamped with now.
func Compute(events []model.MarketEvent, now time.Time) map[model.MetricWindow]model.ComputedMetric {
	out := make(map[model.MetricWindow]model.ComputedMetric, len(model.AllWindows))

	for _, w := range model.AllWindows {
		selected := selectWindow(events, now, w.Duration())

		m := model.ComputedMetric{
			Window:    w,
			Timestamp: now,
		}
		m.WindowStats = computeStats(selected)
		m.ListingMetrics = computeStats(filterKind(selected, model.KindListing))
		m.PurchaseMetrics = computeStats(filterKind(selected, model.KindPurchase))

		if w == model.Window24h {
			// The fields the alert evaluator reads.
			m.PriceChange24h = m.PriceChange
			m.VolumeChange24h = model.Float(m.PurchaseMetrics.TradeVolume)
		}

		out[w] = m
	}

	return out
}

// selectWindow returns events with now-window <= timestamp <= now.
func selectWindow(events []model.MarketEvent, now time.Time, window time.Duration) []model.MarketEvent {
	lower := now.Add(-window)

	var out []model.MarketEvent
	for _, ev := range events {
		if ev.Timestamp.Before(lower) || ev.Timestamp.After(now) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func filterKind(events []model.MarketEvent, kind model.EventKind) []model.MarketEvent {
	var out []model.MarketEvent
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// computeStats aggregates one event subset. events must be in timestamp
// order; the price-change baseline is the first priced event.
func computeStats(events []model.MarketEvent) model.WindowStats {
	stats := model.WindowStats{EventCount: len(events)}
	if len(events) == 0 {
		return stats
	}

	var prices []float64
	for _, ev := range events {
		stats.TradeVolume += ev.Quantity
		switch ev.Side {
		case model.SideBuy:
			stats.BuyCount++
		case model.SideSell:
			stats.SellCount++
		}
		if ev.Price != nil {
			prices = append(prices, *ev.Price)
		}
	}

	stats.LiquidityRatio = model.Float(stats.TradeVolume / float64(stats.EventCount))

	if len(prices) == 0 {
		return stats
	}

	sum := 0.0
	maxPrice := prices[0]
	for _, p := range prices {
		sum += p
		if p > maxPrice {
			maxPrice = p
		}
	}
	stats.AveragePrice = model.Float(sum / float64(len(prices)))
	stats.MedianPrice = model.Float(median(prices))

	// Guard: a zero first price would divide by zero.
	if first := prices[0]; first != 0 {
		stats.PriceChange = model.Float((maxPrice - first) / first * 100)
	}

	return stats
}

// median returns the middle of the sorted values, averaging the two middle
// values for even counts. values is not modified.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
