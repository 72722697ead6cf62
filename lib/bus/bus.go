package bus

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("bus")

// --------------------------------------------------------------------------
// Bus
// --------------------------------------------------------------------------

// listener is one registered subscription. A wildcard subscription shares a
// single listener across all names it expanded to. seq is the registration
// order and breaks priority ties.
type listener struct {
	id       string
	priority Priority
	seq      uint64
	fn       ListenerFunc
	filter   FilterFunc

	// backpressure semaphore, nil when backpressure is disabled
	sem     chan struct{}
	pending atomic.Int64
}

// Bus is a priority-ordered publish/subscribe event bus with bounded
// per-name buffers.
type Bus struct {
	opts Options

	listenerSeq atomic.Uint64
	closed      atomic.Bool
	done        chan struct{} // closed on Destroy, abandons waiting deliveries

	mu            sync.RWMutex
	listeners     map[string][]*listener
	listenerCount int

	buffers *xsync.MapOf[string, *eventRing]

	// counters double as the Prometheus export
	set        *metrics.Set
	cPublished *metrics.Counter
	cDelivered *metrics.Counter
	cFailed    *metrics.Counter
	cBatched   *metrics.Counter
}

// New creates a new bus instance with the specified options (optional).
//
// Thread-safety: This function is not thread-safe and should only be called
// once during initialization.
func New(opts *Options) *Bus {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.MaxListeners <= 0 {
		o.MaxListeners = defaultMaxListeners
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = defaultDeliveryTimeout
	}
	if o.PriorityLevels <= 0 {
		o.PriorityLevels = defaultPriorityLevels
	}
	if o.BackpressureThreshold <= 0 {
		o.BackpressureThreshold = defaultBackpressureThreshold
	}

	set := metrics.NewSet()
	return &Bus{
		opts:       o,
		done:       make(chan struct{}),
		listeners:  make(map[string][]*listener),
		buffers:    xsync.NewMapOf[string, *eventRing](),
		set:        set,
		cPublished: set.NewCounter("accord_bus_events_published_total"),
		cDelivered: set.NewCounter("accord_bus_deliveries_total"),
		cFailed:    set.NewCounter("accord_bus_deliveries_failed_total"),
		cBatched:   set.NewCounter("accord_bus_events_batched_total"),
	}
}

// clampPriority constrains a priority to the configured number of levels.
func (b *Bus) clampPriority(p Priority) Priority {
	if p < 0 {
		return 0
	}
	if max := Priority(b.opts.PriorityLevels - 1); p > max {
		return max
	}
	return p
}

// --------------------------------------------------------------------------
// Subscriptions
// --------------------------------------------------------------------------

// Subscribe registers fn under an event name and returns the listener id.
//
// The pattern "*" expands to every event name currently known to the bus
// (names with registered listeners or buffered events); event names that
// first appear after the subscription are not matched. Any other pattern is
// an exact event name.
func (b *Bus) Subscribe(pattern string, fn ListenerFunc, opts *SubscribeOptions) (string, error) {
	if b.closed.Load() {
		return "", ErrClosed
	}

	prio := PriorityNormal
	var filter FilterFunc
	backpressure := false
	if opts != nil {
		prio = opts.Priority
		filter = opts.Filter
		backpressure = opts.Backpressure
	}

	seq := b.listenerSeq.Add(1)
	l := &listener{
		id:       fmt.Sprintf("lst_%d", seq),
		priority: b.clampPriority(prio),
		seq:      seq,
		fn:       fn,
		filter:   filter,
	}
	if backpressure {
		l.sem = make(chan struct{}, b.opts.BackpressureThreshold)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listenerCount >= b.opts.MaxListeners {
		return "", ErrTooManyListeners
	}

	names := []string{pattern}
	if pattern == "*" {
		names = b.knownNamesLocked()
	}
	for _, name := range names {
		b.insertLocked(name, l)
	}
	b.listenerCount++

	return l.id, nil
}

// knownNamesLocked returns all event names with listeners or buffered
// events. Must be called with the lock held.
func (b *Bus) knownNamesLocked() []string {
	seen := make(map[string]bool)
	var names []string
	for name, list := range b.listeners {
		if len(list) > 0 && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	b.buffers.Range(func(name string, _ *eventRing) bool {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return true
	})
	return names
}

// insertLocked inserts a listener before the first lower-priority listener,
// after all equal ones. Must be called with the lock held.
func (b *Bus) insertLocked(name string, l *listener) {
	list := b.listeners[name]
	idx := len(list)
	for i, existing := range list {
		if existing.priority < l.priority {
			idx = i
			break
		}
	}
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = l
	b.listeners[name] = list
}

// Unsubscribe removes a listener from every name it is registered under. It
// returns false when the id is unknown.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := false
	for name, list := range b.listeners {
		for i, l := range list {
			if l.id == id {
				b.listeners[name] = append(list[:i], list[i+1:]...)
				removed = true
				break
			}
		}
	}
	if removed {
		b.listenerCount--
	}
	return removed
}

// --------------------------------------------------------------------------
// Publishing
// --------------------------------------------------------------------------

// Publish publishes an event under the given name and returns the assigned
// event id. The call waits until every matching listener finished or the
// delivery timeout elapsed, whichever comes first; in-flight listener
// callbacks keep running after a timeout.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (b *Bus) Publish(name string, payload any, opts *PublishOptions) (string, error) {
	if b.closed.Load() {
		return "", ErrClosed
	}
	return b.emit(b.buildEvent(name, payload, opts))
}

// BatchPublish publishes all events concurrently under one shared batch id
// (stamped into each event's metadata as "batch_id").
func (b *Bus) BatchPublish(events []BatchEvent) (BatchResult, error) {
	if b.closed.Load() {
		return BatchResult{}, ErrClosed
	}

	batchID := uuid.NewString()
	ids := make([]string, len(events))

	var wg sync.WaitGroup
	wg.Add(len(events))
	for i, be := range events {
		go func(i int, be BatchEvent) {
			defer wg.Done()

			e := b.buildEvent(be.Name, be.Payload, be.Opts)
			if e.Metadata == nil {
				e.Metadata = make(map[string]string, 1)
			}
			e.Metadata[MetaBatchID] = batchID

			id, err := b.emit(e)
			if err != nil {
				Logger.Warningf("batch %s: publishing %q failed: %v", batchID, be.Name, err)
				return
			}
			ids[i] = id
		}(i, be)
	}
	wg.Wait()

	b.cBatched.Add(len(events))
	return BatchResult{BatchID: batchID, IDs: ids}, nil
}

// ReplayEvents republishes the buffered events of a name with a timestamp at
// or after since. Replayed copies keep the original payload and priority but
// receive fresh ids and timestamps and carry metadata replayed="true". The
// number of replayed events is returned.
func (b *Bus) ReplayEvents(name string, since time.Time) (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}

	ring, ok := b.buffers.Load(name)
	if !ok {
		return 0, nil
	}

	count := 0
	for _, old := range ring.since(since) {
		meta := make(map[string]string, len(old.Metadata)+1)
		for k, v := range old.Metadata {
			meta[k] = v
		}
		meta[MetaReplayed] = "true"

		e := Event{
			ID:        uuid.NewString(),
			Name:      old.Name,
			Payload:   old.Payload,
			Timestamp: time.Now(),
			Priority:  old.Priority,
			Metadata:  meta,
		}
		if _, err := b.emit(e); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// buildEvent assembles an event with a fresh id and timestamp.
func (b *Bus) buildEvent(name string, payload any, opts *PublishOptions) Event {
	prio := PriorityNormal
	var meta map[string]string
	if opts != nil {
		prio = opts.Priority
		if len(opts.Metadata) > 0 {
			meta = make(map[string]string, len(opts.Metadata))
			for k, v := range opts.Metadata {
				meta[k] = v
			}
		}
	}
	return Event{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now(),
		Priority:  b.clampPriority(prio),
		Metadata:  meta,
	}
}

// emit persists, buffers and delivers one fully-built event.
func (b *Bus) emit(e Event) (string, error) {
	if b.closed.Load() {
		return "", ErrClosed
	}

	// persist before anyone can observe the event
	if b.opts.EventLog != nil {
		if err := b.opts.EventLog.SaveEvent(e); err != nil {
			// delivery matters more than the audit trail
			Logger.Warningf("persisting event %s (%s) failed: %v", e.ID, e.Name, err)
		}
	}

	ring, _ := b.buffers.LoadOrCompute(e.Name, func() *eventRing {
		return newEventRing(b.opts.BufferSize)
	})
	ring.add(e)
	b.cPublished.Inc()

	b.mu.RLock()
	subs := append([]*listener{}, b.listeners[e.Name]...)
	b.mu.RUnlock()

	if len(subs) == 0 {
		return e.ID, nil
	}

	// Deliveries start in descending priority order, registration order on
	// ties. The handshake waits until a delivery has begun before starting
	// the next one, so callbacks are entered in priority order while their
	// bodies run concurrently.
	var wg sync.WaitGroup
	for _, l := range subs {
		if l.filter != nil && !l.filter(e) {
			continue
		}
		wg.Add(1)
		started := make(chan struct{})
		go b.deliver(l, e, &wg, started)
		<-started
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	timer := time.NewTimer(b.opts.DeliveryTimeout)
	defer timer.Stop()

	select {
	case <-finished:
	case <-timer.C:
		b.cFailed.Inc()
		Logger.Warningf("delivery of event %s (%s) timed out after %v", e.ID, e.Name, b.opts.DeliveryTimeout)
		if b.opts.OnDeliveryFailure != nil {
			b.opts.OnDeliveryFailure(e, ErrDeliveryTimeout)
		}
	}
	return e.ID, nil
}

// deliver runs one listener callback, honoring its backpressure bound.
// started is closed once the delivery is underway.
func (b *Bus) deliver(l *listener, e Event, wg *sync.WaitGroup, started chan<- struct{}) {
	defer wg.Done()

	if l.sem != nil {
		// the capacity wait must not hold up lower-priority listeners
		close(started)
		select {
		case l.sem <- struct{}{}:
		case <-b.done:
			return
		}
		defer func() { <-l.sem }()
	}

	l.pending.Add(1)
	defer l.pending.Add(-1)

	if l.sem == nil {
		close(started)
	}

	defer func() {
		if r := recover(); r != nil {
			b.cFailed.Inc()
			err := fmt.Errorf("listener panic: %v", r)
			Logger.Errorf("listener %s panicked on event %s (%s): %v", l.id, e.ID, e.Name, r)
			if b.opts.OnListenerError != nil {
				b.opts.OnListenerError(l.id, e, err)
			}
		}
	}()

	if err := l.fn(e); err != nil {
		b.cFailed.Inc()
		if b.opts.OnListenerError != nil {
			b.opts.OnListenerError(l.id, e, err)
		}
		return
	}
	b.cDelivered.Inc()
}

// --------------------------------------------------------------------------
// Statistics and Teardown
// --------------------------------------------------------------------------

// Statistics returns a snapshot of the bus counters.
func (b *Bus) Statistics() Statistics {
	b.mu.RLock()
	active := b.listenerCount
	b.mu.RUnlock()

	buffered := 0
	b.buffers.Range(func(_ string, ring *eventRing) bool {
		buffered += ring.len()
		return true
	})

	return Statistics{
		Published:       b.cPublished.Get(),
		Delivered:       b.cDelivered.Get(),
		Failed:          b.cFailed.Get(),
		Batched:         b.cBatched.Get(),
		ActiveListeners: active,
		BufferedEvents:  buffered,
	}
}

// WritePrometheus writes the bus counters in Prometheus text format.
func (b *Bus) WritePrometheus(w io.Writer) {
	b.set.WritePrometheus(w)
}

// Destroy closes the bus: all registries and buffers are cleared, waiting
// deliveries are abandoned and in-flight callbacks are left to finish on
// their own. Further operations return ErrClosed. Destroy is idempotent.
func (b *Bus) Destroy() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	close(b.done)

	b.mu.Lock()
	b.listeners = make(map[string][]*listener)
	b.listenerCount = 0
	b.mu.Unlock()

	b.buffers.Clear()

	if b.opts.EventLog != nil {
		if err := b.opts.EventLog.Close(); err != nil {
			Logger.Warningf("closing event log failed: %v", err)
		}
	}
}
