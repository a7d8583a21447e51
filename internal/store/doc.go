// Package store defines the persistence interfaces for the engine and
// provides two implementations:
//
//   - Memory: mutex-guarded maps, used by tests and for development
//   - Postgres: pgx-backed, batch upserts with ON CONFLICT for idempotent
//     ingestion and bounded batch deletes for retention sweeps
//
// Event and snapshot writes are idempotent by caller-assigned id. Metric
// rows are one-per-(collection, window) and overwritten on refresh.
package store
