// Package eventlog provides a SQLite-backed implementation of the
// bus.EventLog interface for durable event persistence.
//
// Every published event is written to a single events table before
// delivery. Payloads and metadata are stored as JSON text, so payloads
// read back from the log carry JSON types (numbers become float64,
// objects become map[string]any) rather than the originally published
// Go types.
//
// The database is opened with WAL journaling and a single write
// connection, which keeps concurrent publishers from tripping over
// SQLITE_BUSY errors.
package eventlog
