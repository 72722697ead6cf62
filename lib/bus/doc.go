// Package bus implements the decoupled publish/subscribe channel between the
// accord components. Events are delivered to listeners concurrently but in a
// guaranteed invocation order (descending priority, registration order within
// one priority), raced against a per-event delivery timeout, and buffered
// per event name for later replay.
//
// The package focuses on:
//   - Priority-ordered concurrent delivery with per-listener isolation
//   - Per-listener backpressure through bounded semaphores (no busy-waiting)
//   - Bounded per-name FIFO event buffers feeding replay
//   - Optional event persistence behind the EventLog interface
//   - Delivery statistics exposed both as a struct and as Prometheus metrics
//
// Key Components:
//
//   - Bus: The event bus. Created with New, configured through Options
//     (listener cap, buffer size, delivery timeout, priority levels,
//     backpressure threshold, optional event log, host hooks).
//
//   - Listeners: Registered with Subscribe under an exact event name or the
//     wildcard "*". The wildcard expands to every event name known at
//     subscribe time (names with listeners or buffered events); names that
//     appear later are not matched. Each listener has a priority, an
//     optional filter that skips deliveries silently, and an optional
//     backpressure bound on its in-flight deliveries.
//
//   - EventLog: Pluggable persistence for published events. The bus ships an
//     in-memory implementation; the eventlog sub-package provides a
//     SQLite-backed one. When no log is configured, persistence is skipped
//     entirely.
//
// Delivery Semantics:
//
//	Publish assigns the event id and timestamp, persists and buffers the
//	event, then launches one goroutine per matching listener in invocation
//	order, waiting for each delivery to begin before starting the next.
//	Callbacks are therefore entered in priority order while their bodies run
//	concurrently. A backpressured listener at capacity is the one exception:
//	it reports itself started before waiting for capacity, so its callback
//	may lag behind lower-priority listeners instead of stalling them.
//	The publish call waits for all deliveries, raced against the configured
//	timeout: on timeout the event is counted as failed and the delivery
//	failure hook fires, but the in-flight callbacks are not cancelled and
//	keep running to completion. A listener returning an error or panicking is
//	counted, reported through the listener error hook and never affects its
//	sibling listeners or the publisher.
//
// Thread Safety:
//
//	All operations are safe for concurrent use. Destroy closes the bus,
//	clears all registries and buffers and abandons in-flight deliveries
//	without waiting for them.
package bus
