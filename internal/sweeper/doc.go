// Package sweeper deletes market events, snapshots and metrics that have
// aged past the configured retention horizon. Deletion runs in bounded
// batches so a large backlog never holds long transactions open. The
// engine's job scheduler drives periodic runs.
package sweeper
