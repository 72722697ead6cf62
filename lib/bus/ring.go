package bus

import (
	"sync"
	"time"
)

// eventRing is the bounded FIFO buffer of published events for one event
// name. When the bound is reached, the oldest events are evicted.
type eventRing struct {
	mu     sync.Mutex
	max    int
	events []Event
}

func newEventRing(max int) *eventRing {
	return &eventRing{max: max}
}

func (r *eventRing) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) >= r.max {
		drop := len(r.events) - r.max + 1
		r.events = append(r.events[drop:], e)
		return
	}
	r.events = append(r.events, e)
}

// since returns a copy of the buffered events with a timestamp at or after
// the given time, oldest first.
func (r *eventRing) since(ts time.Time) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events {
		if !e.Timestamp.Before(ts) {
			out = append(out, e)
		}
	}
	return out
}

func (r *eventRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
