package resolve

import (
	"time"

	"github.com/accordlabs/accord/lib/value"
)

// --------------------------------------------------------------------------
// Core Types
// --------------------------------------------------------------------------

// Built-in strategy names.
const (
	StrategyServerWins    = "server-wins"
	StrategyClientWins    = "client-wins"
	StrategyLastWriteWins = "last-write-wins"
	StrategyAutoMerge     = "auto-merge"
)

// Resolution sources.
const (
	SourceServer = "server"
	SourceClient = "client"
	SourceMerged = "merged"
)

// Conflict is a pair of divergent values for one key, one from the server
// and one from the local client.
type Conflict struct {
	Key             string            `json:"key"`
	ServerValue     value.Value       `json:"server_value"`
	ClientValue     value.Value       `json:"client_value"`
	ServerTimestamp time.Time         `json:"server_timestamp"`
	ClientTimestamp time.Time         `json:"client_timestamp"`

	// DataType selects the merge rule for auto-merge. When empty it is
	// inferred from ServerValue.
	DataType value.DataType `json:"data_type,omitempty"`

	// ForcedStrategy overrides strategy selection when set.
	ForcedStrategy string `json:"forced_strategy,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Resolution is the outcome of resolving one conflict.
type Resolution struct {
	Value    value.Value       `json:"value"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Strategy converts a conflict into a resolution. A returned error makes the
// resolver retry the same conflict until the retry budget is exhausted.
type Strategy func(c Conflict) (Resolution, error)

// MergeRule combines a server and a client value of one data type. Invoked
// by the auto-merge strategy.
type MergeRule func(server, client value.Value) (value.Value, error)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

const (
	defaultMaxRetries      = 3
	defaultHistorySize     = 100
	defaultStringDelimiter = "\n"
)

// Options configures a Resolver during initialization.
type Options struct {
	// DefaultStrategy is used when a conflict forces no strategy and no
	// merge rule covers its data type (empty = "last-write-wins").
	DefaultStrategy string

	// MaxRetries is the number of retries after a failed resolution
	// attempt (0 = default: 3).
	MaxRetries int

	// EnableMergeRules registers the built-in merge rules for arrays,
	// objects and strings and lets auto-merge win strategy selection for
	// covered data types.
	EnableMergeRules bool

	// TrackHistory records every resolution in a bounded FIFO log.
	TrackHistory bool

	// HistorySize bounds the resolution history (0 = default: 100).
	HistorySize int

	// StringDelimiter joins server and client values in the built-in
	// string merge rule (empty = default: newline).
	StringDelimiter string
}

// DefaultOptions returns the default resolver options.
func DefaultOptions() *Options {
	return &Options{
		DefaultStrategy:  StrategyLastWriteWins,
		MaxRetries:       defaultMaxRetries,
		EnableMergeRules: true,
		TrackHistory:     true,
		HistorySize:      defaultHistorySize,
		StringDelimiter:  defaultStringDelimiter,
	}
}

// --------------------------------------------------------------------------
// History and Statistics
// --------------------------------------------------------------------------

// HistoryRecord is one resolved conflict in the resolution history.
type HistoryRecord struct {
	Conflict   Conflict   `json:"conflict"`
	Resolution Resolution `json:"resolution"`
	Strategy   string     `json:"strategy"`
	Timestamp  time.Time  `json:"timestamp"`
}

// HistoryFilter narrows History results. Zero fields match everything.
type HistoryFilter struct {
	// Strategy keeps only resolutions by this strategy name.
	Strategy string

	// Since keeps only resolutions at or after this timestamp.
	Since time.Time
}

// Statistics is a snapshot of the resolver counters.
type Statistics struct {
	TotalResolutions uint64            `json:"total_resolutions"`
	PerStrategy      map[string]uint64 `json:"per_strategy"`
	Strategies       int               `json:"strategies"`
	MergeRules       int               `json:"merge_rules"`
}
