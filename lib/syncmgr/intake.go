package syncmgr

import (
	"runtime"
	"sync/atomic"

	"github.com/accordlabs/accord/lib/state"
)

// intakeNode is a single queued change notification.
type intakeNode struct {
	update *state.Update
	next   atomic.Pointer[intakeNode]
}

// intakeQueue is a lock-free multi-producer queue for change notifications.
// Producers are bus delivery goroutines pushing concurrently; the single
// consumer is the active sync cycle, which drains the queue at cycle start.
// The busy guard of the orchestrator serializes consumers.
//
// Under concurrent pushes the final order is decided by which producer
// completes its append first, not by which one started first.
type intakeQueue struct {
	head   atomic.Pointer[intakeNode]
	tail   atomic.Pointer[intakeNode]
	closed atomic.Bool
	size   atomic.Int64
}

// newIntakeQueue creates an empty queue with a sentinel node as both head
// and tail.
func newIntakeQueue() *intakeQueue {
	sentinel := &intakeNode{}
	q := &intakeQueue{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Push appends one notification. Returns false when the queue is closed or
// the update is nil.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *intakeQueue) Push(update *state.Update) bool {
	if update == nil || q.closed.Load() {
		return false
	}

	newNode := &intakeNode{update: update}
	var backoff uint8

	for {
		tailNode := q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			// the tail has no successor yet, try to append our node
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// the tail CAS may fail when another producer helps
				// move it forward, which is fine
				q.tail.CompareAndSwap(tailNode, newNode)
				q.size.Add(1)
				return true
			}
		} else {
			// help a producer that appended but has not moved tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// exponential backoff under contention, spinning first and
		// yielding once contention persists
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// Drain removes and returns every notification currently queued, oldest
// first. Must only be called by the single consumer; pushes racing the
// drain land in the queue for the next cycle.
func (q *intakeQueue) Drain() []state.Update {
	var out []state.Update
	for {
		head := q.head.Load()
		next := head.next.Load()
		if next == nil {
			return out
		}

		out = append(out, *next.update)

		// moving head releases the node for the GC
		q.head.Store(next)
		next.update = nil
		q.size.Add(-1)
	}
}

// Len returns the number of queued notifications.
func (q *intakeQueue) Len() int {
	return int(q.size.Load())
}

// Close rejects further pushes. Queued notifications stay drainable.
func (q *intakeQueue) Close() {
	q.closed.Store(true)
}
