package state

import (
	"time"

	"github.com/accordlabs/accord/lib/value"
)

// --------------------------------------------------------------------------
// Core Types
// --------------------------------------------------------------------------

// Source identifies where a write originated.
type Source string

const (
	SourceClient     Source = "client"
	SourceServer     Source = "server"
	SourceMerge      Source = "merge"
	SourceResolution Source = "conflict-resolution"
)

// Priority orders subscriber notification. Higher priorities are notified
// first; subscribers with equal priority run in registration order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Entry is the stored record for a key.
type Entry struct {
	Key       string            `json:"key"`
	Value     value.Value       `json:"value"`
	Version   uint64            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Source    Source            `json:"source"`
}

// Update is the notification payload passed to subscribers and update hooks.
type Update struct {
	ID        string            `json:"id"`
	Key       string            `json:"key"`
	Value     value.Value       `json:"value"`
	Version   uint64            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Source    Source            `json:"source"`
	BatchID   string            `json:"batch_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// HistoryRecord is one slot of the bounded history ring: the update that was
// applied plus the value it replaced. Existed is false when the key was new,
// in which case Previous is the nil value.
type HistoryRecord struct {
	Update   Update      `json:"update"`
	Previous value.Value `json:"previous"`
	Existed  bool        `json:"existed"`
}

// SubscribeFunc is invoked synchronously for every matching update.
type SubscribeFunc func(v value.Value, u Update)

// FilterFunc decides whether a subscriber sees an update. Returning false
// skips the subscriber silently.
type FilterFunc func(v value.Value, u Update) bool

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// MergeStrategy selects how Merge reconciles a key both sides changed.
type MergeStrategy string

const (
	MergeLastWriteWins MergeStrategy = "last-write-wins"
	MergeServerWins    MergeStrategy = "server-wins"
	MergeFieldMerge    MergeStrategy = "field-merge"
)

const defaultHistorySize = 100

// Options configures a Store during initialization.
type Options struct {
	// HistorySize bounds the history ring (0 = default: 100).
	HistorySize int

	// MergeStrategy is the default strategy for Merge ("" = last-write-wins).
	MergeStrategy MergeStrategy

	// EnableVersioning enables version-based conflict detection during Merge.
	// Versions are always assigned to writes regardless of this flag.
	EnableVersioning bool

	// AutoSync is a hint for the host that this store wants periodic
	// synchronization. The store itself never acts on it.
	AutoSync bool

	// OnUpdate optionally registers an initial store-level update hook.
	OnUpdate func(Update)
}

// DefaultOptions returns the default store options.
func DefaultOptions() *Options {
	return &Options{
		HistorySize:      defaultHistorySize,
		MergeStrategy:    MergeLastWriteWins,
		EnableVersioning: true,
		AutoSync:         false,
	}
}

// SetOptions carries the optional per-write parameters of Set.
type SetOptions struct {
	Source   Source            // origin of the write ("" = client)
	Metadata map[string]string // attached to the entry and the update
	BatchID  string            // set by Batch, shared by all writes of a batch
}

// SubscribeOptions carries the optional parameters of Subscribe.
type SubscribeOptions struct {
	Priority Priority
	Filter   FilterFunc
}

// BatchUpdate is one write of a Batch call.
type BatchUpdate struct {
	Key   string
	Value value.Value
	Opts  *SetOptions
}

// MergeOptions carries the optional parameters of Merge.
type MergeOptions struct {
	// Strategy overrides the store's default merge strategy ("" = default).
	Strategy MergeStrategy
}

// MergeResult reports what a Merge call did.
type MergeResult struct {
	// Conflicts is the number of keys where both sides carried differing
	// versions.
	Conflicts int

	// Updates is the number of writes Merge applied to the store.
	Updates int
}
