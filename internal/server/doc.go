// Package server exposes the engine over HTTP: read endpoints for metrics
// and alerts, admin endpoints for intake, refresh and sweep, and a health
// check with store counts.
package server
