package bus

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recorder collects delivered events in arrival order.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, r.events...)
}

func TestPublishDeliversToSubscribers(t *testing.T) {
	b := New(nil)
	defer b.Destroy()

	rec := &recorder{}
	if _, err := b.Subscribe("user-login", rec.listen, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	id, err := b.Publish("user-login", "alice", nil)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if id == "" {
		t.Error("Publish() returned empty event id")
	}

	events := rec.snapshot()
	if len(events) != 1 {
		t.Fatalf("delivered %d events, want 1", len(events))
	}
	if events[0].Name != "user-login" || events[0].Payload != "alice" {
		t.Errorf("delivered event = %+v", events[0])
	}
	if events[0].ID != id {
		t.Errorf("delivered id = %q, want %q", events[0].ID, id)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("delivered event has zero timestamp")
	}

	stats := b.Statistics()
	if stats.Published != 1 || stats.Delivered != 1 || stats.Failed != 0 {
		t.Errorf("statistics = %+v", stats)
	}
}

func TestListenersInvokedInPriorityOrder(t *testing.T) {
	b := New(nil)
	defer b.Destroy()

	var mu sync.Mutex
	var order []string
	tag := func(name string) ListenerFunc {
		return func(Event) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	// registered low first to prove ordering comes from priority, not
	// registration; the two high listeners prove ties keep registration order
	subscribeAll := []struct {
		name string
		prio Priority
	}{
		{"low", PriorityLow},
		{"high-1", PriorityHigh},
		{"high-2", PriorityHigh},
		{"normal", PriorityNormal},
	}
	for _, s := range subscribeAll {
		if _, err := b.Subscribe("tick", tag(s.name), &SubscribeOptions{Priority: s.prio}); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", s.name, err)
		}
	}

	if _, err := b.Publish("tick", nil, nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"high-1", "high-2", "normal", "low"}
	if len(order) != len(want) {
		t.Fatalf("invoked %d listeners, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("invocation order = %v, want %v", order, want)
			break
		}
	}
}

func TestListenerFilterSkipsSilently(t *testing.T) {
	b := New(nil)
	defer b.Destroy()

	rec := &recorder{}
	onlyOdd := func(e Event) bool {
		n, ok := e.Payload.(int)
		return ok && n%2 == 1
	}
	if _, err := b.Subscribe("num", rec.listen, &SubscribeOptions{Filter: onlyOdd}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for i := 1; i <= 4; i++ {
		if _, err := b.Publish("num", i, nil); err != nil {
			t.Fatalf("Publish(%d) error = %v", i, err)
		}
	}

	events := rec.snapshot()
	if len(events) != 2 {
		t.Fatalf("delivered %d events, want 2", len(events))
	}
	for _, e := range events {
		if e.Payload.(int)%2 != 1 {
			t.Errorf("filter passed payload %v", e.Payload)
		}
	}

	stats := b.Statistics()
	if stats.Failed != 0 {
		t.Errorf("Failed = %d, filtered deliveries must not count as failures", stats.Failed)
	}
	if stats.Delivered != 2 {
		t.Errorf("Delivered = %d, want 2", stats.Delivered)
	}
}

func TestWildcardMatchesKnownNamesOnly(t *testing.T) {
	b := New(nil)
	defer b.Destroy()

	// "alpha" is known through a listener, "beta" through a buffered event
	if _, err := b.Subscribe("alpha", func(Event) error { return nil }, nil); err != nil {
		t.Fatalf("Subscribe(alpha) error = %v", err)
	}
	if _, err := b.Publish("beta", nil, nil); err != nil {
		t.Fatalf("Publish(beta) error = %v", err)
	}

	rec := &recorder{}
	if _, err := b.Subscribe("*", rec.listen, nil); err != nil {
		t.Fatalf("Subscribe(*) error = %v", err)
	}

	for _, name := range []string{"alpha", "beta", "gamma"} {
		if _, err := b.Publish(name, name, nil); err != nil {
			t.Fatalf("Publish(%s) error = %v", name, err)
		}
	}

	got := make(map[string]bool)
	for _, e := range rec.snapshot() {
		got[e.Name] = true
	}
	if !got["alpha"] || !got["beta"] {
		t.Errorf("wildcard listener missed known names, got %v", got)
	}
	if got["gamma"] {
		t.Error("wildcard listener received event name registered after subscribing")
	}
}

func TestBackpressureBoundsInFlightDeliveries(t *testing.T) {
	const threshold = 2
	b := New(&Options{BackpressureThreshold: threshold})
	defer b.Destroy()

	var (
		inFlight atomic.Int64
		mu       sync.Mutex
		maxSeen  int64
	)
	done := make(chan struct{}, 16)
	slow := func(Event) error {
		cur := inFlight.Add(1)
		mu.Lock()
		if cur > maxSeen {
			maxSeen = cur
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		done <- struct{}{}
		return nil
	}
	if _, err := b.Subscribe("burst", slow, &SubscribeOptions{Backpressure: true}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	const publishes = 8
	var wg sync.WaitGroup
	wg.Add(publishes)
	for i := 0; i < publishes; i++ {
		go func() {
			defer wg.Done()
			if _, err := b.Publish("burst", nil, nil); err != nil {
				t.Errorf("Publish() error = %v", err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < publishes; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d deliveries completed", i, publishes)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if maxSeen > threshold {
		t.Errorf("max concurrent deliveries = %d, want <= %d", maxSeen, threshold)
	}
}

func TestDeliveryTimeoutDoesNotCancelCallback(t *testing.T) {
	failures := make(chan error, 1)
	b := New(&Options{
		DeliveryTimeout: 50 * time.Millisecond,
		OnDeliveryFailure: func(_ Event, err error) {
			failures <- err
		},
	})
	defer b.Destroy()

	gate := make(chan struct{})
	finished := make(chan struct{})
	if _, err := b.Subscribe("slow", func(Event) error {
		<-gate
		close(finished)
		return nil
	}, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	start := time.Now()
	if _, err := b.Publish("slow", nil, nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Publish() blocked %v despite 50ms delivery timeout", elapsed)
	}

	select {
	case err := <-failures:
		if !errors.Is(err, ErrDeliveryTimeout) {
			t.Errorf("failure hook error = %v, want ErrDeliveryTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delivery failure hook never fired")
	}
	if stats := b.Statistics(); stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}

	// the callback must still be running and finish on its own
	close(gate)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was cancelled by the delivery timeout")
	}
}

func TestListenerErrorIsolated(t *testing.T) {
	type listenerFailure struct {
		id  string
		err error
	}
	failures := make(chan listenerFailure, 2)
	b := New(&Options{
		OnListenerError: func(id string, _ Event, err error) {
			failures <- listenerFailure{id: id, err: err}
		},
	})
	defer b.Destroy()

	failErr := errors.New("handler rejected event")
	badID, err := b.Subscribe("job", func(Event) error { return failErr }, nil)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	rec := &recorder{}
	if _, err := b.Subscribe("job", rec.listen, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if _, err := b.Publish("job", nil, nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(rec.snapshot()) != 1 {
		t.Error("failing listener affected its sibling")
	}
	select {
	case f := <-failures:
		if f.id != badID || !errors.Is(f.err, failErr) {
			t.Errorf("listener error hook got (%q, %v)", f.id, f.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener error hook never fired")
	}
	stats := b.Statistics()
	if stats.Failed != 1 || stats.Delivered != 1 {
		t.Errorf("statistics = %+v", stats)
	}
}

func TestListenerPanicIsolated(t *testing.T) {
	failures := make(chan error, 1)
	b := New(&Options{
		OnListenerError: func(_ string, _ Event, err error) {
			failures <- err
		},
	})
	defer b.Destroy()

	if _, err := b.Subscribe("job", func(Event) error { panic("boom") }, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	rec := &recorder{}
	if _, err := b.Subscribe("job", rec.listen, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if _, err := b.Publish("job", nil, nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(rec.snapshot()) != 1 {
		t.Error("panicking listener affected its sibling")
	}
	select {
	case err := <-failures:
		if !strings.Contains(err.Error(), "boom") {
			t.Errorf("listener error = %v, want panic value", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener error hook never fired for panic")
	}
}

func TestBatchPublishSharesBatchID(t *testing.T) {
	b := New(nil)
	defer b.Destroy()

	rec := &recorder{}
	for _, name := range []string{"created", "updated"} {
		if _, err := b.Subscribe(name, rec.listen, nil); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", name, err)
		}
	}

	res, err := b.BatchPublish([]BatchEvent{
		{Name: "created", Payload: 1},
		{Name: "updated", Payload: 2},
		{Name: "created", Payload: 3},
	})
	if err != nil {
		t.Fatalf("BatchPublish() error = %v", err)
	}
	if res.BatchID == "" {
		t.Fatal("BatchPublish() returned empty batch id")
	}
	if len(res.IDs) != 3 {
		t.Fatalf("BatchPublish() returned %d ids, want 3", len(res.IDs))
	}

	seen := make(map[string]bool)
	for i, id := range res.IDs {
		if id == "" {
			t.Errorf("event %d has empty id", i)
		}
		if seen[id] {
			t.Errorf("event id %q not unique", id)
		}
		seen[id] = true
	}

	events := rec.snapshot()
	if len(events) != 3 {
		t.Fatalf("delivered %d events, want 3", len(events))
	}
	for _, e := range events {
		if e.Metadata[MetaBatchID] != res.BatchID {
			t.Errorf("event %s batch id = %q, want %q", e.ID, e.Metadata[MetaBatchID], res.BatchID)
		}
	}

	if stats := b.Statistics(); stats.Batched != 3 {
		t.Errorf("Batched = %d, want 3", stats.Batched)
	}
}

func TestReplayEvents(t *testing.T) {
	b := New(nil)
	defer b.Destroy()

	// buffered before anyone subscribes
	firstID, err := b.Publish("orders", "order-1", nil)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(2 * time.Millisecond)
	if _, err := b.Publish("orders", "order-2", nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	rec := &recorder{}
	if _, err := b.Subscribe("orders", rec.listen, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	t.Run("ReplayAll", func(t *testing.T) {
		n, err := b.ReplayEvents("orders", time.Time{})
		if err != nil {
			t.Fatalf("ReplayEvents() error = %v", err)
		}
		if n != 2 {
			t.Fatalf("ReplayEvents() = %d, want 2", n)
		}

		events := rec.snapshot()
		if len(events) != 2 {
			t.Fatalf("delivered %d replayed events, want 2", len(events))
		}
		if events[0].Payload != "order-1" || events[1].Payload != "order-2" {
			t.Errorf("replayed payloads = %v, %v", events[0].Payload, events[1].Payload)
		}
		for _, e := range events {
			if e.Name != "orders" {
				t.Errorf("replayed name = %q, want orders", e.Name)
			}
			if e.Metadata[MetaReplayed] != "true" {
				t.Errorf("replayed event %s missing replayed metadata", e.ID)
			}
			if e.ID == firstID {
				t.Error("replayed event reused the original event id")
			}
		}
	})

	t.Run("ReplaySince", func(t *testing.T) {
		before := len(rec.snapshot())
		n, err := b.ReplayEvents("orders", cutoff)
		if err != nil {
			t.Fatalf("ReplayEvents() error = %v", err)
		}
		// order-2 plus the two replayed copies buffered by the previous subtest
		if n != 3 {
			t.Fatalf("ReplayEvents(since) = %d, want 3", n)
		}
		if got := len(rec.snapshot()) - before; got != 3 {
			t.Errorf("delivered %d events since cutoff, want 3", got)
		}
	})

	t.Run("UnknownName", func(t *testing.T) {
		n, err := b.ReplayEvents("never-published", time.Time{})
		if err != nil {
			t.Fatalf("ReplayEvents() error = %v", err)
		}
		if n != 0 {
			t.Errorf("ReplayEvents() = %d, want 0", n)
		}
	})
}

func TestBufferBounded(t *testing.T) {
	b := New(&Options{BufferSize: 3})
	defer b.Destroy()

	for i := 1; i <= 5; i++ {
		if _, err := b.Publish("m", i, nil); err != nil {
			t.Fatalf("Publish(%d) error = %v", i, err)
		}
	}

	rec := &recorder{}
	if _, err := b.Subscribe("m", rec.listen, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	n, err := b.ReplayEvents("m", time.Time{})
	if err != nil {
		t.Fatalf("ReplayEvents() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("ReplayEvents() = %d, want 3 (oldest evicted)", n)
	}
	var payloads []int
	for _, e := range rec.snapshot() {
		payloads = append(payloads, e.Payload.(int))
	}
	want := []int{3, 4, 5}
	for i := range want {
		if payloads[i] != want[i] {
			t.Fatalf("replayed payloads = %v, want %v", payloads, want)
		}
	}
}

func TestMaxListeners(t *testing.T) {
	b := New(&Options{MaxListeners: 2})
	defer b.Destroy()

	for i := 0; i < 2; i++ {
		if _, err := b.Subscribe(fmt.Sprintf("e%d", i), func(Event) error { return nil }, nil); err != nil {
			t.Fatalf("Subscribe(%d) error = %v", i, err)
		}
	}
	if _, err := b.Subscribe("e2", func(Event) error { return nil }, nil); !errors.Is(err, ErrTooManyListeners) {
		t.Errorf("Subscribe() error = %v, want ErrTooManyListeners", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New(nil)
	defer b.Destroy()

	if _, err := b.Subscribe("alpha", func(Event) error { return nil }, nil); err != nil {
		t.Fatalf("Subscribe(alpha) error = %v", err)
	}
	if _, err := b.Publish("beta", nil, nil); err != nil {
		t.Fatalf("Publish(beta) error = %v", err)
	}

	rec := &recorder{}
	id, err := b.Subscribe("*", rec.listen, nil)
	if err != nil {
		t.Fatalf("Subscribe(*) error = %v", err)
	}
	if got := b.Statistics().ActiveListeners; got != 2 {
		t.Fatalf("ActiveListeners = %d, want 2", got)
	}

	if !b.Unsubscribe(id) {
		t.Fatal("Unsubscribe() = false for live listener")
	}
	if b.Unsubscribe(id) {
		t.Error("Unsubscribe() = true for already removed listener")
	}
	if got := b.Statistics().ActiveListeners; got != 1 {
		t.Errorf("ActiveListeners = %d after unsubscribe, want 1", got)
	}

	// the wildcard listener was registered under both names, both must be gone
	for _, name := range []string{"alpha", "beta"} {
		if _, err := b.Publish(name, nil, nil); err != nil {
			t.Fatalf("Publish(%s) error = %v", name, err)
		}
	}
	if got := len(rec.snapshot()); got != 0 {
		t.Errorf("unsubscribed listener received %d events", got)
	}
}

func TestPriorityClamped(t *testing.T) {
	b := New(&Options{PriorityLevels: 3})
	defer b.Destroy()

	rec := &recorder{}
	if _, err := b.Subscribe("p", rec.listen, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if _, err := b.Publish("p", nil, &PublishOptions{Priority: 99}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if _, err := b.Publish("p", nil, &PublishOptions{Priority: -7}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	events := rec.snapshot()
	if events[0].Priority != Priority(2) {
		t.Errorf("priority 99 clamped to %d, want 2", events[0].Priority)
	}
	if events[1].Priority != Priority(0) {
		t.Errorf("priority -7 clamped to %d, want 0", events[1].Priority)
	}
}

func TestEventLogPersistsPublishedEvents(t *testing.T) {
	log := NewMemoryEventLog()
	b := New(&Options{EventLog: log})
	defer b.Destroy()

	id, err := b.Publish("audited", "payload", nil)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	e, ok, err := log.GetEvent(id)
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if !ok {
		t.Fatal("published event not in event log")
	}
	if e.Name != "audited" || e.Payload != "payload" {
		t.Errorf("logged event = %+v", e)
	}
}

// failingLog rejects every save, the bus must keep delivering anyway.
type failingLog struct{}

func (failingLog) SaveEvent(Event) error                { return errors.New("disk full") }
func (failingLog) GetEvent(string) (Event, bool, error) { return Event{}, false, nil }
func (failingLog) Close() error                         { return nil }

func TestEventLogFailureDoesNotBlockDelivery(t *testing.T) {
	b := New(&Options{EventLog: failingLog{}})
	defer b.Destroy()

	rec := &recorder{}
	if _, err := b.Subscribe("audited", rec.listen, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if _, err := b.Publish("audited", nil, nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(rec.snapshot()) != 1 {
		t.Error("event with failed persistence was not delivered")
	}
}

func TestStatisticsBufferedEvents(t *testing.T) {
	b := New(&Options{BufferSize: 2})
	defer b.Destroy()

	for i := 0; i < 3; i++ {
		if _, err := b.Publish("a", i, nil); err != nil {
			t.Fatalf("Publish(a) error = %v", err)
		}
	}
	if _, err := b.Publish("b", 0, nil); err != nil {
		t.Fatalf("Publish(b) error = %v", err)
	}

	stats := b.Statistics()
	if stats.Published != 4 {
		t.Errorf("Published = %d, want 4", stats.Published)
	}
	// "a" is capped at the buffer size, "b" holds one
	if stats.BufferedEvents != 3 {
		t.Errorf("BufferedEvents = %d, want 3", stats.BufferedEvents)
	}
}

func TestWritePrometheus(t *testing.T) {
	b := New(nil)
	defer b.Destroy()

	if _, err := b.Publish("m", nil, nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	var buf bytes.Buffer
	b.WritePrometheus(&buf)
	out := buf.String()
	if !strings.Contains(out, "accord_bus_events_published_total 1") {
		t.Errorf("prometheus output missing published counter:\n%s", out)
	}
}

func TestDestroy(t *testing.T) {
	b := New(nil)

	rec := &recorder{}
	if _, err := b.Subscribe("x", rec.listen, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	b.Destroy()
	b.Destroy() // idempotent

	if _, err := b.Publish("x", nil, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() after destroy error = %v, want ErrClosed", err)
	}
	if _, err := b.Subscribe("y", rec.listen, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe() after destroy error = %v, want ErrClosed", err)
	}
	if _, err := b.ReplayEvents("x", time.Time{}); !errors.Is(err, ErrClosed) {
		t.Errorf("ReplayEvents() after destroy error = %v, want ErrClosed", err)
	}
	if _, err := b.BatchPublish(nil); !errors.Is(err, ErrClosed) {
		t.Errorf("BatchPublish() after destroy error = %v, want ErrClosed", err)
	}

	stats := b.Statistics()
	if stats.ActiveListeners != 0 || stats.BufferedEvents != 0 {
		t.Errorf("statistics after destroy = %+v", stats)
	}
}
