package eventlog

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/accordlabs/accord/lib/bus"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema
const currentSchemaVersion = 1

// Log stores bus events in a SQLite database.
type Log struct {
	db *sql.DB
}

var _ bus.EventLog = (*Log)(nil)

// Open creates or opens the event log database at the given path.
// Pragmas and the schema are applied automatically, so the function is
// idempotent and safe to call on an existing log file.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to event log: %w", err)
	}

	// SQLite supports one writer at a time, limit connections accordingly
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Log{db: db}, nil
}

// SaveEvent writes one event to the log. Saving the same event id twice
// overwrites the stored row, so retried writes are harmless.
func (l *Log) SaveEvent(e bus.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode payload of event %s: %w", e.ID, err)
	}

	var meta []byte
	if len(e.Metadata) > 0 {
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of event %s: %w", e.ID, err)
		}
	}

	_, err = l.db.Exec(
		`INSERT OR REPLACE INTO events (id, name, payload, timestamp, priority, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, string(payload), e.Timestamp.UnixNano(), int(e.Priority), nullable(meta),
	)
	if err != nil {
		return fmt.Errorf("save event %s: %w", e.ID, err)
	}
	return nil
}

// GetEvent loads one event by id. The second return value is false when
// the id is not in the log.
func (l *Log) GetEvent(id string) (bus.Event, bool, error) {
	var (
		e        bus.Event
		payload  string
		unixNano int64
		prio     int
		meta     sql.NullString
	)

	row := l.db.QueryRow(
		`SELECT id, name, payload, timestamp, priority, metadata FROM events WHERE id = ?`, id,
	)
	err := row.Scan(&e.ID, &e.Name, &payload, &unixNano, &prio, &meta)
	if err == sql.ErrNoRows {
		return bus.Event{}, false, nil
	}
	if err != nil {
		return bus.Event{}, false, fmt.Errorf("load event %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return bus.Event{}, false, fmt.Errorf("decode payload of event %s: %w", id, err)
	}
	if meta.Valid {
		if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
			return bus.Event{}, false, fmt.Errorf("decode metadata of event %s: %w", id, err)
		}
	}
	e.Timestamp = time.Unix(0, unixNano)
	e.Priority = bus.Priority(prio)
	return e, true, nil
}

// Len returns the number of events in the log.
func (l *Log) Len() (int, error) {
	var n int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// nullable turns an empty byte slice into a NULL column value.
func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// applyPragmas sets the required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates the events table and bumps user_version. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}
