// Package stores provides the persistence layer for OpenMatter telemetry.
// It includes a SQLite-based event store with WAL mode, embedded schema
// migrations, and query operations over the recorded event history. The
// store plugs directly into a telemetry.EventPublisher through the
// Subscriber adapter.
package stores
