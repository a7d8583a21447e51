package metrics

import (
	"testing"
	"time"

	"github.com/collectionpulse/engine/internal/model"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func purchase(id string, offset time.Duration, price *float64, qty float64) model.MarketEvent {
	return model.MarketEvent{
		EventID:      id,
		CollectionID: "col-1",
		Kind:         model.KindPurchase,
		Side:         model.SideBuy,
		Price:        price,
		Quantity:     qty,
		Timestamp:    testNow.Add(offset),
	}
}

func listing(id string, offset time.Duration, price *float64) model.MarketEvent {
	return model.MarketEvent{
		EventID:      id,
		CollectionID: "col-1",
		Kind:         model.KindListing,
		Side:         model.SideSell,
		Price:        price,
		Timestamp:    testNow.Add(offset),
	}
}

func wantFloat(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s = nil, want %v", name, want)
	}
	if *got != want {
		t.Errorf("%s = %v, want %v", name, *got, want)
	}
}

func TestCompute_WindowCorrectness(t *testing.T) {
	events := []model.MarketEvent{
		purchase("e1", -30*time.Minute, model.Float(100), 1),
		purchase("e2", -10*time.Minute, model.Float(150), 2),
	}

	m := Compute(events, testNow)[model.Window24h]

	wantFloat(t, "PriceChange", m.PriceChange, 50)
	wantFloat(t, "AveragePrice", m.AveragePrice, 125)
	wantFloat(t, "MedianPrice", m.MedianPrice, 125)
	if m.TradeVolume != 3 {
		t.Errorf("TradeVolume = %v, want 3", m.TradeVolume)
	}
	if m.BuyCount != 2 || m.SellCount != 0 {
		t.Errorf("BuyCount/SellCount = %d/%d, want 2/0", m.BuyCount, m.SellCount)
	}
	if m.EventCount != 2 {
		t.Errorf("EventCount = %d, want 2", m.EventCount)
	}
	wantFloat(t, "LiquidityRatio", m.LiquidityRatio, 1.5)
}

func TestCompute_ZeroDivisionGuard(t *testing.T) {
	events := []model.MarketEvent{
		purchase("e1", -30*time.Minute, model.Float(0), 1),
		purchase("e2", -10*time.Minute, model.Float(150), 1),
	}

	m := Compute(events, testNow)[model.Window24h]

	if m.PriceChange != nil {
		t.Errorf("PriceChange = %v, want nil (first price is 0)", *m.PriceChange)
	}
	// The other price stats are unaffected by the guard.
	wantFloat(t, "AveragePrice", m.AveragePrice, 75)
}

func TestCompute_EmptyWindow(t *testing.T) {
	m := Compute(nil, testNow)[model.Window24h]

	if m.PriceChange != nil || m.AveragePrice != nil || m.MedianPrice != nil || m.LiquidityRatio != nil {
		t.Errorf("nullable stats not nil for empty window: %+v", m.WindowStats)
	}
	if m.TradeVolume != 0 || m.BuyCount != 0 || m.SellCount != 0 || m.EventCount != 0 {
		t.Errorf("counts not zero for empty window: %+v", m.WindowStats)
	}
}

func TestCompute_MedianParity(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{"even count", []float64{100, 200, 300, 400}, 250},
		{"odd count", []float64{100, 200, 300}, 200},
		{"unsorted input", []float64{300, 100, 200}, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := median(tt.prices); got != tt.want {
				t.Errorf("median(%v) = %v, want %v", tt.prices, got, tt.want)
			}
		})
	}
}

func TestCompute_WindowSelection(t *testing.T) {
	events := []model.MarketEvent{
		purchase("old", -48*time.Hour, model.Float(50), 1),
		purchase("in", -30*time.Minute, model.Float(100), 1),
		purchase("future", 10*time.Minute, model.Float(999), 1),
	}

	got := Compute(events, testNow)

	if n := got[model.Window24h].EventCount; n != 1 {
		t.Errorf("24h EventCount = %d, want 1 (old and future excluded)", n)
	}
	if n := got[model.Window72h].EventCount; n != 2 {
		t.Errorf("72h EventCount = %d, want 2", n)
	}
	if n := got[model.Window1h].EventCount; n != 1 {
		t.Errorf("1h EventCount = %d, want 1", n)
	}
}

func TestCompute_SubsetsAnd24hMirrors(t *testing.T) {
	events := []model.MarketEvent{
		listing("l1", -2*time.Hour, model.Float(100)),
		listing("l2", -1*time.Hour, model.Float(120)),
		purchase("p1", -90*time.Minute, model.Float(110), 3),
		purchase("p2", -20*time.Minute, model.Float(121), 2),
	}

	got := Compute(events, testNow)
	m := got[model.Window24h]

	if m.ListingMetrics.EventCount != 2 {
		t.Errorf("listing EventCount = %d, want 2", m.ListingMetrics.EventCount)
	}
	if m.PurchaseMetrics.EventCount != 2 {
		t.Errorf("purchase EventCount = %d, want 2", m.PurchaseMetrics.EventCount)
	}
	if m.PurchaseMetrics.TradeVolume != 5 {
		t.Errorf("purchase TradeVolume = %v, want 5", m.PurchaseMetrics.TradeVolume)
	}

	// 24h mirrors read by the alert evaluator.
	wantFloat(t, "PriceChange24h", m.PriceChange24h, 21)
	wantFloat(t, "VolumeChange24h", m.VolumeChange24h, 5)

	// Mirrors exist only on the 24h row.
	if m6 := got[model.Window6h]; m6.PriceChange24h != nil || m6.VolumeChange24h != nil {
		t.Error("6h row carries 24h mirror fields")
	}
}

func TestCompute_MissingPricesAndQuantities(t *testing.T) {
	events := []model.MarketEvent{
		purchase("e1", -30*time.Minute, nil, 0), // no price, no quantity
		purchase("e2", -20*time.Minute, nil, 2),
	}

	m := Compute(events, testNow)[model.Window24h]

	if m.PriceChange != nil || m.AveragePrice != nil || m.MedianPrice != nil {
		t.Error("price stats should be nil when no event carries a price")
	}
	if m.TradeVolume != 2 {
		t.Errorf("TradeVolume = %v, want 2 (missing quantity counts as 0)", m.TradeVolume)
	}
	if m.EventCount != 2 {
		t.Errorf("EventCount = %d, want 2", m.EventCount)
	}
	wantFloat(t, "LiquidityRatio", m.LiquidityRatio, 1)
}

func TestCompute_PriceChangeUsesMaxAgainstFirst(t *testing.T) {
	// First 100, peak 200, last 150: change is (200-100)/100 = 100%.
	events := []model.MarketEvent{
		purchase("e1", -3*time.Hour, model.Float(100), 1),
		purchase("e2", -2*time.Hour, model.Float(200), 1),
		purchase("e3", -1*time.Hour, model.Float(150), 1),
	}

	m := Compute(events, testNow)[model.Window24h]
	wantFloat(t, "PriceChange", m.PriceChange, 100)
}
