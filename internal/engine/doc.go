// Package engine orchestrates the refresh cycle: it drains the dirty set,
// recomputes window metrics, evaluates alert rules against the fresh 24h
// rows and hands triggered alerts to the dispatcher. It also runs the
// scheduled refresh and cleanup jobs.
package engine
