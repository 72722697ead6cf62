package state

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/accordlabs/accord/lib/value"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("state")

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// subscriber is one per-key subscription. seq is the registration order and
// breaks priority ties.
type subscriber struct {
	id       string
	priority Priority
	seq      uint64
	fn       SubscribeFunc
	filter   FilterFunc
}

// Store is a versioned in-memory key-value store with bounded history and
// synchronous per-key subscriptions.
type Store struct {
	opts Options

	version   atomic.Uint64 // store-wide version counter
	updateSeq atomic.Uint64 // update id counter
	subSeq    atomic.Uint64 // subscriber id and registration order counter
	closed    atomic.Bool

	mu      sync.RWMutex
	entries map[string]Entry
	history []HistoryRecord
	subs    map[string][]*subscriber
	hooks   []func(Update)
	meta    map[string]string
}

// New creates a new store instance with the specified options (optional).
//
// Thread-safety: This function is not thread-safe and should only be called
// once during initialization.
func New(opts *Options) *Store {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.HistorySize <= 0 {
		o.HistorySize = defaultHistorySize
	}
	if o.MergeStrategy == "" {
		o.MergeStrategy = MergeLastWriteWins
	}

	s := &Store{
		opts:    o,
		entries: make(map[string]Entry),
		subs:    make(map[string][]*subscriber),
		meta:    make(map[string]string),
	}
	if o.OnUpdate != nil {
		s.hooks = append(s.hooks, o.OnUpdate)
	}
	return s
}

// nextVersion increments the store-wide version counter and returns the new
// value. Each successful write consumes exactly one version.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *Store) nextVersion() uint64 {
	return s.version.Add(1)
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates the entry for key, assigns the next version,
// snapshots the previous value into the history ring and synchronously
// notifies the matching subscribers in descending priority order
// (registration order within one priority). The returned id identifies this
// update in history records and notifications.
//
// History and version advance even when no subscriber is registered.
//
// Thread-safety: This method is thread-safe. Subscriber callbacks run on the
// calling goroutine outside the store lock, so callbacks may call back into
// the store.
func (s *Store) Set(key string, v value.Value, opts *SetOptions) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}

	src := SourceClient
	var (
		meta    map[string]string
		batchID string
	)
	if opts != nil {
		if opts.Source != "" {
			src = opts.Source
		}
		meta = cloneMeta(opts.Metadata)
		batchID = opts.BatchID
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return "", ErrClosed
	}

	prev, existed := s.entries[key]
	now := time.Now()
	u := Update{
		ID:        fmt.Sprintf("upd_%d", s.updateSeq.Add(1)),
		Key:       key,
		Value:     v,
		Version:   s.nextVersion(),
		Timestamp: now,
		Source:    src,
		BatchID:   batchID,
		Metadata:  meta,
	}
	s.entries[key] = Entry{
		Key:       key,
		Value:     v,
		Version:   u.Version,
		Timestamp: now,
		Metadata:  meta,
		Source:    src,
	}
	s.appendHistory(HistoryRecord{Update: u, Previous: prev.Value, Existed: existed})

	subs := s.matching(key)
	hooks := append([]func(Update){}, s.hooks...)
	s.mu.Unlock()

	for _, sub := range subs {
		s.notify(sub, u)
	}
	for _, hook := range hooks {
		hook(u)
	}
	return u.ID, nil
}

// appendHistory appends a record to the history ring, evicting the oldest
// records beyond the configured bound. Must be called with the lock held.
func (s *Store) appendHistory(rec HistoryRecord) {
	if len(s.history) >= s.opts.HistorySize {
		drop := len(s.history) - s.opts.HistorySize + 1
		s.history = append(s.history[drop:], rec)
		return
	}
	s.history = append(s.history, rec)
}

// notify runs a single subscriber, applying its filter first. A panicking
// subscriber is recovered and logged so it cannot break the writer or its
// sibling subscribers.
func (s *Store) notify(sub *subscriber, u Update) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("subscriber %s panicked on key %q: %v", sub.id, u.Key, r)
		}
	}()
	if sub.filter != nil && !sub.filter(u.Value, u) {
		return
	}
	sub.fn(u.Value, u)
}

// Batch applies the updates sequentially under one shared batch id.
//
// Batches are NOT atomic: when a write fails, the earlier writes stay applied
// and Batch returns the ids of the applied updates together with the error.
func (s *Store) Batch(updates []BatchUpdate) ([]string, error) {
	batchID := uuid.NewString()
	ids := make([]string, 0, len(updates))

	for i, bu := range updates {
		var o SetOptions
		if bu.Opts != nil {
			o = *bu.Opts
		}
		o.BatchID = batchID

		id, err := s.Set(bu.Key, bu.Value, &o)
		if err != nil {
			return ids, fmt.Errorf("batch %s failed at update %d (key %q): %w", batchID, i, bu.Key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get retrieves the current value for a key.
// The boolean indicates whether the key exists; unknown keys fail silently.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) Get(key string) (value.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return value.Nil(), false
	}
	return e.Value, true
}

// GetEntry retrieves the full entry for a key including version, timestamp,
// source and metadata.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) GetEntry(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	e.Metadata = cloneMeta(e.Metadata)
	return e, true
}

// History returns a copy of the history ring, oldest record first.
func (s *Store) History() []HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]HistoryRecord{}, s.history...)
}

// Entries returns a snapshot of all entries sorted by key.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		e.Metadata = cloneMeta(e.Metadata)
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// Range calls fn for every entry of a snapshot taken at call time. Iteration
// stops when fn returns false. fn runs outside the store lock.
func (s *Store) Range(fn func(Entry) bool) {
	for _, e := range s.Entries() {
		if !fn(e) {
			return
		}
	}
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Version returns the current value of the store-wide version counter.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// AutoSync returns the auto-sync hint from the store options.
func (s *Store) AutoSync() bool {
	return s.opts.AutoSync
}

// --------------------------------------------------------------------------
// Subscriptions and Hooks
// --------------------------------------------------------------------------

// Subscribe registers fn for updates of key and returns the subscription id.
// Higher-priority subscribers are notified first; subscribers with equal
// priority are notified in registration order.
func (s *Store) Subscribe(key string, fn SubscribeFunc, opts *SubscribeOptions) string {
	prio := PriorityNormal
	var filter FilterFunc
	if opts != nil {
		prio = opts.Priority
		filter = opts.Filter
	}

	seq := s.subSeq.Add(1)
	sub := &subscriber{
		id:       fmt.Sprintf("sub_%d", seq),
		priority: prio,
		seq:      seq,
		fn:       fn,
		filter:   filter,
	}

	s.mu.Lock()
	list := s.subs[key]
	// insert before the first lower-priority subscriber, after all equal ones
	idx := sort.Search(len(list), func(i int) bool { return list[i].priority < sub.priority })
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = sub
	s.subs[key] = list
	s.mu.Unlock()

	return sub.id
}

// Unsubscribe removes a subscription. It returns false when the id is not
// registered for the key.
func (s *Store) Unsubscribe(key, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.subs[key]
	for i, sub := range list {
		if sub.id == id {
			s.subs[key] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// OnUpdate registers a store-level hook that runs after the per-key
// subscribers for every update. Hooks cannot be removed.
func (s *Store) OnUpdate(fn func(Update)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// matching returns a copy of the subscriber list for key. Must be called with
// the lock held.
func (s *Store) matching(key string) []*subscriber {
	list := s.subs[key]
	if len(list) == 0 {
		return nil
	}
	out := make([]*subscriber, len(list))
	copy(out, list)
	return out
}

// --------------------------------------------------------------------------
// Store Metadata and Teardown
// --------------------------------------------------------------------------

// SetMeta stores a store-level metadata entry (used by the sync orchestrator
// for sync status stamps).
func (s *Store) SetMeta(key, val string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = val
}

// Meta returns a copy of the store-level metadata.
func (s *Store) Meta() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMeta(s.meta)
}

// Destroy tears the store down: entries, history, subscribers, hooks and
// metadata are cleared and all further operations return ErrClosed. Destroy
// is idempotent.
func (s *Store) Destroy() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
	s.history = nil
	s.subs = make(map[string][]*subscriber)
	s.hooks = nil
	s.meta = make(map[string]string)
}

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
