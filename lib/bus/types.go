package bus

import (
	"time"
)

// --------------------------------------------------------------------------
// Core Types
// --------------------------------------------------------------------------

// Priority orders listener invocation. Higher priorities are invoked first;
// listeners with equal priority run in registration order. Values are clamped
// to the configured number of priority levels.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Metadata keys stamped by the bus itself.
const (
	// MetaBatchID carries the shared batch id on events published through
	// BatchPublish.
	MetaBatchID = "batch_id"

	// MetaReplayed is set to "true" on events republished by ReplayEvents.
	MetaReplayed = "replayed"
)

// Event is a published event. ID and Timestamp are assigned by the bus.
type Event struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Payload   any               `json:"payload"`
	Timestamp time.Time         `json:"timestamp"`
	Priority  Priority          `json:"priority"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ListenerFunc handles one delivered event. A returned error is counted and
// reported through the listener error hook but never reaches the publisher.
type ListenerFunc func(e Event) error

// FilterFunc decides whether a listener sees an event. Returning false skips
// the delivery silently.
type FilterFunc func(e Event) bool

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

const (
	defaultMaxListeners          = 100
	defaultBufferSize            = 100
	defaultDeliveryTimeout       = 5 * time.Second
	defaultPriorityLevels        = 3
	defaultBackpressureThreshold = 10
)

// Options configures a Bus during initialization.
type Options struct {
	// MaxListeners caps the total number of registered listeners
	// (0 = default: 100).
	MaxListeners int

	// BufferSize bounds the per-name FIFO event buffer (0 = default: 100).
	BufferSize int

	// DeliveryTimeout is the per-event delivery deadline
	// (0 = default: 5s).
	DeliveryTimeout time.Duration

	// PriorityLevels is the number of distinct priority levels; priorities
	// outside [0, PriorityLevels) are clamped (0 = default: 3).
	PriorityLevels int

	// BackpressureThreshold bounds the in-flight deliveries of a
	// backpressure-enabled listener (0 = default: 10).
	BackpressureThreshold int

	// EventLog optionally persists every published event. The bus takes
	// ownership and closes the log on Destroy. Nil disables persistence.
	EventLog EventLog

	// OnDeliveryFailure is invoked when the delivery of an event times out.
	OnDeliveryFailure func(e Event, err error)

	// OnListenerError is invoked when a listener returns an error or panics.
	OnListenerError func(listenerID string, e Event, err error)
}

// DefaultOptions returns the default bus options.
func DefaultOptions() *Options {
	return &Options{
		MaxListeners:          defaultMaxListeners,
		BufferSize:            defaultBufferSize,
		DeliveryTimeout:       defaultDeliveryTimeout,
		PriorityLevels:        defaultPriorityLevels,
		BackpressureThreshold: defaultBackpressureThreshold,
	}
}

// SubscribeOptions carries the optional parameters of Subscribe.
type SubscribeOptions struct {
	Priority     Priority
	Filter       FilterFunc
	Backpressure bool
}

// PublishOptions carries the optional parameters of Publish.
type PublishOptions struct {
	Priority Priority
	Metadata map[string]string
}

// BatchEvent is one event of a BatchPublish call.
type BatchEvent struct {
	Name    string
	Payload any
	Opts    *PublishOptions
}

// BatchResult reports the outcome of a BatchPublish call. IDs are in input
// order.
type BatchResult struct {
	BatchID string
	IDs     []string
}

// Statistics is a snapshot of the bus counters.
type Statistics struct {
	Published       uint64 `json:"published"`
	Delivered       uint64 `json:"delivered"`
	Failed          uint64 `json:"failed"`
	Batched         uint64 `json:"batched"`
	ActiveListeners int    `json:"active_listeners"`
	BufferedEvents  int    `json:"buffered_events"`
}

// --------------------------------------------------------------------------
// Event Persistence
// --------------------------------------------------------------------------

// EventLog persists published events for audit and retrieval by id.
// Implementations must be safe for concurrent use.
type EventLog interface {
	// SaveEvent persists one event.
	SaveEvent(e Event) error

	// GetEvent retrieves a persisted event by id. The boolean indicates
	// whether the id was found.
	GetEvent(id string) (Event, bool, error)

	// Close releases the resources of the log.
	Close() error
}
