// Package model defines shared data types used across the metrics and
// alerting engine.
//
// Conventions:
//   - Prices and quantities: float64; nullable numeric fields use *float64
//     (nil = no signal, which is distinct from 0)
//   - Timestamps: time.Time in UTC
//   - IDs: strings; collection and event ids are caller-assigned, alert ids
//     are generated uuids
package model
