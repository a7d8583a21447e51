// Package metrics computes deterministic rolling-window aggregates from
// stored market events.
//
// Every metric row is a pure function of the events currently inside its
// window; refreshes overwrite rather than accumulate, so there is no drift.
// Collections are independent and refresh in parallel under a worker limit.
package metrics
