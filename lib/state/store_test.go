package state

import (
	"errors"
	"sync"
	"testing"

	"github.com/accordlabs/accord/lib/value"
)

// TestSetAssignsSequentialVersions verifies that two writes to the same key
// consume exactly two versions and that the second value wins.
func TestSetAssignsSequentialVersions(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	if _, err := s.Set("counter", value.Int(1), nil); err != nil {
		t.Fatalf("first set failed: %v", err)
	}
	if _, err := s.Set("counter", value.Int(2), nil); err != nil {
		t.Fatalf("second set failed: %v", err)
	}

	e, ok := s.GetEntry("counter")
	if !ok {
		t.Fatalf("key not found after set")
	}
	if e.Version != 2 {
		t.Errorf("expected version 2, got %d", e.Version)
	}
	if e.Value.Num != 2 {
		t.Errorf("expected value 2, got %s", e.Value)
	}
	if got := len(s.History()); got != 2 {
		t.Errorf("expected 2 history records, got %d", got)
	}
	if s.Version() != 2 {
		t.Errorf("expected version counter 2, got %d", s.Version())
	}
}

// TestVersionCounterSharedAcrossKeys verifies that the version counter is
// store-wide, not per key.
func TestVersionCounterSharedAcrossKeys(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	s.Set("a", value.Int(1), nil)
	s.Set("b", value.Int(2), nil)
	s.Set("a", value.Int(3), nil)

	a, _ := s.GetEntry("a")
	b, _ := s.GetEntry("b")
	if a.Version != 3 || b.Version != 2 {
		t.Errorf("expected versions a=3 b=2, got a=%d b=%d", a.Version, b.Version)
	}
}

// TestFailedSetConsumesNoVersion verifies that rejected writes never burn a
// version.
func TestFailedSetConsumesNoVersion(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	if _, err := s.Set("", value.Int(1), nil); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if s.Version() != 0 {
		t.Errorf("failed set consumed a version: counter is %d", s.Version())
	}
	if got := len(s.History()); got != 0 {
		t.Errorf("failed set left %d history records", got)
	}
}

// TestGetUnknownKey verifies that lookups of unknown keys fail silently.
func TestGetUnknownKey(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	v, ok := s.Get("missing")
	if ok {
		t.Errorf("expected ok=false for unknown key")
	}
	if v.Kind != value.KindNil {
		t.Errorf("expected nil value for unknown key, got %s", v)
	}
	if _, ok := s.GetEntry("missing"); ok {
		t.Errorf("expected ok=false from GetEntry for unknown key")
	}
}

// TestSetOptionsArePersisted verifies source and metadata handling.
func TestSetOptionsArePersisted(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	meta := map[string]string{"origin": "test"}
	if _, err := s.Set("k", value.String("v"), &SetOptions{Source: SourceServer, Metadata: meta}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	e, _ := s.GetEntry("k")
	if e.Source != SourceServer {
		t.Errorf("expected source %q, got %q", SourceServer, e.Source)
	}
	if e.Metadata["origin"] != "test" {
		t.Errorf("metadata not persisted: %v", e.Metadata)
	}

	// mutating the caller's map after the write must not affect the entry
	meta["origin"] = "changed"
	e, _ = s.GetEntry("k")
	if e.Metadata["origin"] != "test" {
		t.Errorf("entry metadata aliases the caller's map")
	}
}

// TestHistoryBounded verifies FIFO eviction at the configured bound.
func TestHistoryBounded(t *testing.T) {
	s := New(&Options{HistorySize: 3})
	defer s.Destroy()

	for i := 1; i <= 5; i++ {
		s.Set("k", value.Int(int64(i)), nil)
	}

	h := s.History()
	if len(h) != 3 {
		t.Fatalf("expected 3 history records, got %d", len(h))
	}
	// oldest two records evicted, the ring holds versions 3..5 in order
	for i, rec := range h {
		if want := uint64(i + 3); rec.Update.Version != want {
			t.Errorf("record %d: expected version %d, got %d", i, want, rec.Update.Version)
		}
	}
}

// TestHistoryRecordsPreviousValue verifies the previous-value snapshot.
func TestHistoryRecordsPreviousValue(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	s.Set("k", value.String("first"), nil)
	s.Set("k", value.String("second"), nil)

	h := s.History()
	if len(h) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(h))
	}
	if h[0].Existed || h[0].Previous.Kind != value.KindNil {
		t.Errorf("first record should have no previous value: %+v", h[0])
	}
	if !h[1].Existed || h[1].Previous.Str != "first" {
		t.Errorf("second record should snapshot the first value, got %s", h[1].Previous)
	}
}

// TestSubscriberPriorityOrder verifies descending priority with registration
// order inside one priority level.
func TestSubscriberPriorityOrder(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	var order []string
	record := func(name string) SubscribeFunc {
		return func(value.Value, Update) { order = append(order, name) }
	}

	s.Subscribe("k", record("low"), &SubscribeOptions{Priority: PriorityLow})
	s.Subscribe("k", record("high-1"), &SubscribeOptions{Priority: PriorityHigh})
	s.Subscribe("k", record("normal"), &SubscribeOptions{Priority: PriorityNormal})
	s.Subscribe("k", record("high-2"), &SubscribeOptions{Priority: PriorityHigh})

	s.Set("k", value.Int(1), nil)

	want := []string{"high-1", "high-2", "normal", "low"}
	if len(order) != len(want) {
		t.Fatalf("expected %d notifications, got %d (%v)", len(want), len(order), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected notification order %v, got %v", want, order)
		}
	}
}

// TestSubscriberFilter verifies that rejected updates skip the subscriber
// silently.
func TestSubscriberFilter(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	var seen []value.Value
	s.Subscribe("k", func(v value.Value, _ Update) {
		seen = append(seen, v)
	}, &SubscribeOptions{
		Filter: func(v value.Value, _ Update) bool { return v.Kind == value.KindNumber },
	})

	s.Set("k", value.String("skipped"), nil)
	s.Set("k", value.Int(42), nil)

	if len(seen) != 1 || seen[0].Num != 42 {
		t.Errorf("expected exactly the numeric update, got %v", seen)
	}
}

// TestSubscribeOtherKeyNotNotified verifies per-key scoping.
func TestSubscribeOtherKeyNotNotified(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	called := false
	s.Subscribe("a", func(value.Value, Update) { called = true }, nil)
	s.Set("b", value.Int(1), nil)

	if called {
		t.Errorf("subscriber for key a was notified for key b")
	}
}

// TestUnsubscribe verifies removal semantics.
func TestUnsubscribe(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	calls := 0
	id := s.Subscribe("k", func(value.Value, Update) { calls++ }, nil)

	s.Set("k", value.Int(1), nil)
	if !s.Unsubscribe("k", id) {
		t.Fatalf("expected Unsubscribe to succeed")
	}
	s.Set("k", value.Int(2), nil)

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if s.Unsubscribe("k", id) {
		t.Errorf("expected second Unsubscribe to fail")
	}
	if s.Unsubscribe("k", "sub_999") {
		t.Errorf("expected Unsubscribe of unknown id to fail")
	}
}

// TestSubscriberPanicIsolated verifies that a panicking subscriber breaks
// neither the write nor its siblings.
func TestSubscriberPanicIsolated(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	survived := false
	s.Subscribe("k", func(value.Value, Update) { panic("boom") }, &SubscribeOptions{Priority: PriorityHigh})
	s.Subscribe("k", func(value.Value, Update) { survived = true }, nil)

	if _, err := s.Set("k", value.Int(1), nil); err != nil {
		t.Fatalf("set failed because of a panicking subscriber: %v", err)
	}
	if !survived {
		t.Errorf("sibling subscriber was not notified after a panic")
	}
}

// TestSubscriberReentrancy verifies that callbacks may call back into the
// store without deadlocking.
func TestSubscriberReentrancy(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	var got value.Value
	s.Subscribe("k", func(value.Value, Update) {
		got, _ = s.Get("k")
	}, nil)

	s.Set("k", value.Int(7), nil)
	if got.Num != 7 {
		t.Errorf("re-entrant read saw %s, expected 7", got)
	}
}

// TestBatchSharesBatchID verifies that all writes of one batch carry the same
// batch id.
func TestBatchSharesBatchID(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	var batchIDs []string
	s.OnUpdate(func(u Update) { batchIDs = append(batchIDs, u.BatchID) })

	ids, err := s.Batch([]BatchUpdate{
		{Key: "a", Value: value.Int(1)},
		{Key: "b", Value: value.Int(2)},
		{Key: "c", Value: value.Int(3)},
	})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 update ids, got %d", len(ids))
	}
	if len(batchIDs) != 3 || batchIDs[0] == "" {
		t.Fatalf("expected 3 batch ids, got %v", batchIDs)
	}
	if batchIDs[0] != batchIDs[1] || batchIDs[1] != batchIDs[2] {
		t.Errorf("batch ids differ: %v", batchIDs)
	}
}

// TestBatchNotAtomic verifies that a mid-batch failure keeps the earlier
// writes applied.
func TestBatchNotAtomic(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	ids, err := s.Batch([]BatchUpdate{
		{Key: "applied", Value: value.Int(1)},
		{Key: "", Value: value.Int(2)}, // invalid, aborts the batch here
		{Key: "never", Value: value.Int(3)},
	})
	if !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("expected 1 applied update id, got %d", len(ids))
	}
	if _, ok := s.Get("applied"); !ok {
		t.Errorf("write before the failure was rolled back")
	}
	if _, ok := s.Get("never"); ok {
		t.Errorf("write after the failure was applied")
	}
}

// TestOnUpdateHookRunsAfterSubscribers verifies hook ordering.
func TestOnUpdateHookRunsAfterSubscribers(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	var order []string
	s.Subscribe("k", func(value.Value, Update) { order = append(order, "subscriber") }, nil)
	s.OnUpdate(func(Update) { order = append(order, "hook") })

	s.Set("k", value.Int(1), nil)

	if len(order) != 2 || order[0] != "subscriber" || order[1] != "hook" {
		t.Errorf("expected [subscriber hook], got %v", order)
	}
}

// TestSetWithoutSubscribersStillRecords verifies that history and version
// advance with zero subscribers.
func TestSetWithoutSubscribersStillRecords(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	s.Set("k", value.Int(1), nil)
	if s.Version() != 1 || len(s.History()) != 1 {
		t.Errorf("expected version 1 and 1 history record, got %d and %d",
			s.Version(), len(s.History()))
	}
}

// TestDestroy verifies teardown semantics.
func TestDestroy(t *testing.T) {
	s := New(nil)
	s.Set("k", value.Int(1), nil)

	s.Destroy()
	s.Destroy() // idempotent

	if _, err := s.Set("k", value.Int(2), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after destroy, got %v", err)
	}
	if _, ok := s.Get("k"); ok {
		t.Errorf("entries survived destroy")
	}
	if len(s.History()) != 0 {
		t.Errorf("history survived destroy")
	}
}

// TestConcurrentSets verifies that concurrent writers get unique versions and
// the counter ends up exact.
func TestConcurrentSets(t *testing.T) {
	s := New(&Options{HistorySize: 10_000})
	defer s.Destroy()

	const (
		writers          = 8
		writesPerRoutine = 100
	)

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < writesPerRoutine; i++ {
				key := []string{"a", "b", "c", "d"}[i%4]
				if _, err := s.Set(key, value.Int(int64(id*1000+i)), nil); err != nil {
					t.Errorf("concurrent set failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if got := s.Version(); got != writers*writesPerRoutine {
		t.Errorf("expected version counter %d, got %d", writers*writesPerRoutine, got)
	}

	seen := make(map[uint64]bool)
	for _, rec := range s.History() {
		if seen[rec.Update.Version] {
			t.Fatalf("version %d assigned twice", rec.Update.Version)
		}
		seen[rec.Update.Version] = true
	}
}

// TestStoreMeta verifies the store-level metadata used for sync stamps.
func TestStoreMeta(t *testing.T) {
	s := New(nil)
	defer s.Destroy()

	s.SetMeta("sync_status", "ok")
	m := s.Meta()
	if m["sync_status"] != "ok" {
		t.Errorf("expected sync_status=ok, got %v", m)
	}

	// the returned map is a copy
	m["sync_status"] = "tampered"
	if s.Meta()["sync_status"] != "ok" {
		t.Errorf("Meta returned an aliased map")
	}
}
