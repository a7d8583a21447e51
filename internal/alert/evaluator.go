package alert

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/collectionpulse/engine/internal/model"
)

// Config holds alert rule thresholds. Percentages are positive magnitudes.
type Config struct {
	PriceDropPct        float64
	VolumeSpikePct      float64
	ListingDepletionPct float64
	Cooldown            time.Duration
}

// ListingCounts carries the depletion-rule baseline: active listing counts
// from the two most recent snapshots.
type ListingCounts struct {
	Previous int
	Current  int
}

// Evaluator applies the threshold rules to a collection's 24h metrics.
type Evaluator struct {
	cfg       Config
	cooldowns CooldownStore
	logger    *slog.Logger

	now func() time.Time
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(cfg Config, cooldowns CooldownStore, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		cfg:       cfg,
		cooldowns: cooldowns,
		logger:    logger,
		now:       time.Now,
	}
}

// Evaluate runs all three rules against the 24h row. Rules are independent;
// several may fire in one call. Nil metric fields are "no signal" and never
// trigger. Each returned alert has already had its cooldown recorded.
func (e *Evaluator) Evaluate(collectionID string, m24 model.ComputedMetric, listings *ListingCounts) []model.Alert {
	var alerts []model.Alert

	if pc := m24.PriceChange24h; pc != nil && *pc < -e.cfg.PriceDropPct {
		if a, ok := e.gate(collectionID, model.AlertPriceDrop, model.SeverityWarning,
			fmt.Sprintf("24h price dropped %.2f%%", -*pc)); ok {
			alerts = append(alerts, a)
		}
	}

	if vc := m24.VolumeChange24h; vc != nil && *vc > e.cfg.VolumeSpikePct {
		if a, ok := e.gate(collectionID, model.AlertVolumeSpike, model.SeverityInfo,
			fmt.Sprintf("24h purchase volume %.2f exceeds threshold %.2f", *vc, e.cfg.VolumeSpikePct)); ok {
			alerts = append(alerts, a)
		}
	}

	if listings != nil && listings.Previous > 0 {
		depleted := float64(listings.Previous-listings.Current) / float64(listings.Previous) * 100
		if depleted > e.cfg.ListingDepletionPct {
			if a, ok := e.gate(collectionID, model.AlertListingDepletion, model.SeverityCritical,
				fmt.Sprintf("listings depleted %.2f%% (%d -> %d)", depleted, listings.Previous, listings.Current)); ok {
				alerts = append(alerts, a)
			}
		}
	}

	return alerts
}

// gate applies the cooldown check. On pass it records the trigger time
// immediately, before the caller persists or delivers anything; a delivery
// failure therefore does not reset the cooldown.
func (e *Evaluator) gate(collectionID string, t model.AlertType, sev model.Severity, msg string) (model.Alert, bool) {
	now := e.now().UTC()

	if last, ok := e.cooldowns.LastTriggered(collectionID, t); ok {
		if now.Sub(last) < e.cfg.Cooldown {
			e.logger.Debug("alert suppressed by cooldown",
				"collection", collectionID,
				"type", t,
				"last_triggered", last,
			)
			return model.Alert{}, false
		}
	}
	e.cooldowns.MarkTriggered(collectionID, t, now)

	return model.Alert{
		ID:           uuid.NewString(),
		CollectionID: collectionID,
		Type:         t,
		Severity:     sev,
		Message:      msg,
		TriggeredAt:  now,
	}, true
}
