// Package alert evaluates computed metrics against configured thresholds.
//
// Three independent rules run per cycle (price drop, volume spike, listing
// depletion), each gated by a per-(collection, type) cooldown. The cooldown
// is recorded before any persistence or delivery attempt, so a failed
// delivery cannot re-arm the alert within the window.
package alert
