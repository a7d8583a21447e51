// Package database provides PostgreSQL connection pool management for the
// durable event, metric and alert stores.
package database
