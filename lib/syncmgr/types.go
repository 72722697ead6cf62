package syncmgr

import (
	"context"
	"time"

	"github.com/accordlabs/accord/lib/resolve"
	"github.com/accordlabs/accord/lib/state"
	"github.com/accordlabs/accord/lib/value"
)

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

// Event names published by the orchestrator.
const (
	// EventStateChanged carries a state.Update payload for every store
	// mutation. Published by the store bridge installed in New.
	EventStateChanged = "state-changed"

	// EventSyncComplete carries a Report payload after a successful cycle.
	EventSyncComplete = "sync-complete"

	// EventSyncError carries an ErrorReport payload after a failed cycle.
	EventSyncError = "sync-error"
)

// --------------------------------------------------------------------------
// Transport Boundary
// --------------------------------------------------------------------------

// Change is one dirty entry shipped to the remote peer.
type Change struct {
	// Entry is the full local entry. The value is always carried even in
	// delta mode, for peers that cannot apply the delta.
	Entry state.Entry `json:"entry"`

	// Delta is the diff against the value at the last successful sync.
	// Only set in delta mode and only for keys that synced before.
	Delta *value.Delta `json:"delta,omitempty"`

	// RemoteVersion is the version the remote peer reported for this key
	// at the last successful sync, zero for never-synced keys.
	RemoteVersion uint64 `json:"remote_version"`
}

// Applied reports one change the remote peer accepted.
type Applied struct {
	Key string `json:"key"`

	// Version is the peer's new version for the key.
	Version uint64 `json:"version"`
}

// BatchError reports one change the remote peer rejected.
type BatchError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// BatchResult is the remote peer's reply to one batch.
type BatchResult struct {
	Applied   []Applied          `json:"applied"`
	Conflicts []resolve.Conflict `json:"conflicts"`

	// ConflictVersions maps conflicting keys to the peer's current
	// version, letting the next push for those keys pass the peer's
	// version check.
	ConflictVersions map[string]uint64 `json:"conflict_versions,omitempty"`

	Errors []BatchError `json:"errors"`
}

// Transport moves batches of changes to the remote peer. Implementations
// must be safe for concurrent use.
type Transport interface {
	// SendBatch ships one batch and returns the peer's reply. A returned
	// error means the whole batch failed; partial outcomes are reported
	// through the BatchResult instead.
	SendBatch(ctx context.Context, batch []Change) (BatchResult, error)
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

const (
	defaultSyncInterval  = 30 * time.Second
	defaultRetryAttempts = 3
	defaultBatchSize     = 50
)

// Options configures an Orchestrator during initialization.
type Options struct {
	// SyncInterval is the period of the Start/Stop loop
	// (0 = default: 30s).
	SyncInterval time.Duration

	// RetryAttempts is the total number of send attempts per batch
	// (0 = default: 3).
	RetryAttempts int

	// BatchSize is the maximum number of changes per batch
	// (0 = default: 50).
	BatchSize int

	// EnableDeltaUpdates ships a diff against the last synced value
	// alongside the full value.
	EnableDeltaUpdates bool

	// OnSyncComplete is invoked after every successful cycle.
	OnSyncComplete func(r Report)
}

// DefaultOptions returns the default orchestrator options.
func DefaultOptions() *Options {
	return &Options{
		SyncInterval:  defaultSyncInterval,
		RetryAttempts: defaultRetryAttempts,
		BatchSize:     defaultBatchSize,
	}
}

// --------------------------------------------------------------------------
// Reports and Statistics
// --------------------------------------------------------------------------

// Report summarizes one successful sync cycle. It is the payload of
// sync-complete events and the argument of the OnSyncComplete hook.
type Report struct {
	Timestamp         time.Time `json:"timestamp"`
	ChangesProcessed  int       `json:"changes_processed"`
	ConflictsResolved int       `json:"conflicts_resolved"`
	BatchErrors       int       `json:"batch_errors"`
}

// ErrorReport is the payload of sync-error events.
type ErrorReport struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}

// Statistics is a snapshot of the orchestrator counters.
type Statistics struct {
	LastSuccessfulSync time.Time `json:"last_successful_sync"`
	CyclesRun          uint64    `json:"cycles_run"`
	SyncErrors         uint64    `json:"sync_errors"`
	ChangesProcessed   uint64    `json:"changes_processed"`
	ConflictsResolved  uint64    `json:"conflicts_resolved"`
	BatchErrors        uint64    `json:"batch_errors"`
	QueuedChanges      int       `json:"queued_changes"`
	Syncing            bool      `json:"syncing"`
}

// syncedState is the per-key shadow recorded at the last successful sync.
type syncedState struct {
	// Version is the local store version that was synced.
	Version uint64

	// Value is the local value that was synced, the base for delta
	// computation.
	Value value.Value

	// RemoteVersion is the version the peer reported for the key.
	RemoteVersion uint64
}
