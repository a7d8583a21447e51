// Package ingest implements the engine's intake path.
//
// The Ingestor:
//   - Validates incoming events and snapshots
//   - Synthesizes an identity (timestamp + random suffix) for events that
//     arrive without one; rejects only when nothing can be derived
//   - Upserts into the event store (idempotent by caller-assigned id)
//   - Marks collections dirty for the next refresh cycle
//
// No metrics are computed inline; intake latency is decoupled from
// computation cost.
package ingest
