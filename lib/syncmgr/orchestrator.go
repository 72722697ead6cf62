package syncmgr

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/accordlabs/accord/lib/bus"
	"github.com/accordlabs/accord/lib/resolve"
	"github.com/accordlabs/accord/lib/state"
	"github.com/accordlabs/accord/lib/value"
)

var Logger = logger.GetLogger("syncmgr")

// --------------------------------------------------------------------------
// Orchestrator
// --------------------------------------------------------------------------

// Orchestrator reconciles a local state store against a remote peer.
type Orchestrator struct {
	opts Options

	store     *state.Store
	bus       *bus.Bus
	resolver  *resolve.Resolver
	transport Transport

	// busy guard: at most one cycle runs, late callers are rejected
	syncing atomic.Bool
	closed  atomic.Bool

	intake *intakeQueue
	shadow *xsync.MapOf[string, syncedState]
	subID  string

	loopRunning atomic.Bool
	stopCh      chan struct{}

	lastMu   sync.Mutex
	lastSync time.Time

	set        *metrics.Set
	cCycles    *metrics.Counter
	cErrors    *metrics.Counter
	cChanges   *metrics.Counter
	cConflicts *metrics.Counter
	cBatchErrs *metrics.Counter
}

// New creates an orchestrator wiring the store, the bus, the resolver and
// the transport together. Every store mutation is republished on the bus as
// a state-changed event and queued for the next cycle. When the store is
// configured with AutoSync the periodic loop starts immediately.
//
// Thread-safety: This function is not thread-safe and should only be called
// once per component set during initialization.
func New(store *state.Store, b *bus.Bus, resolver *resolve.Resolver, transport Transport, opts *Options) (*Orchestrator, error) {
	if store == nil || b == nil || resolver == nil || transport == nil {
		return nil, fmt.Errorf("orchestrator requires a store, a bus, a resolver and a transport")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.SyncInterval <= 0 {
		o.SyncInterval = defaultSyncInterval
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = defaultRetryAttempts
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}

	set := metrics.NewSet()
	orch := &Orchestrator{
		opts:       o,
		store:      store,
		bus:        b,
		resolver:   resolver,
		transport:  transport,
		intake:     newIntakeQueue(),
		shadow:     xsync.NewMapOf[string, syncedState](),
		set:        set,
		cCycles:    set.NewCounter("accord_sync_cycles_total"),
		cErrors:    set.NewCounter("accord_sync_errors_total"),
		cChanges:   set.NewCounter("accord_sync_changes_total"),
		cConflicts: set.NewCounter("accord_sync_conflicts_resolved_total"),
		cBatchErrs: set.NewCounter("accord_sync_batch_errors_total"),
	}

	// bridge: store mutations -> bus -> intake queue
	store.OnUpdate(func(u state.Update) {
		if _, err := b.Publish(EventStateChanged, u, &bus.PublishOptions{Priority: bus.PriorityHigh}); err != nil {
			Logger.Warningf("publishing state change for %q failed: %v", u.Key, err)
		}
	})
	subID, err := b.Subscribe(EventStateChanged, orch.onStateChanged, &bus.SubscribeOptions{Priority: bus.PriorityHigh})
	if err != nil {
		return nil, fmt.Errorf("subscribing to state changes: %w", err)
	}
	orch.subID = subID

	if store.AutoSync() {
		orch.Start()
	}
	return orch, nil
}

// onStateChanged queues one change notification for the next cycle.
func (o *Orchestrator) onStateChanged(e bus.Event) error {
	u, ok := e.Payload.(state.Update)
	if !ok {
		// foreign publishers may reuse the event name, ignore them
		return nil
	}
	o.intake.Push(&u)
	return nil
}

// --------------------------------------------------------------------------
// Sync Cycle
// --------------------------------------------------------------------------

// Sync runs one sync cycle. A call while another cycle is active is a
// silent no-op returning nil. The busy guard is released on every exit
// path, including panics inside the cycle.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (o *Orchestrator) Sync(ctx context.Context) error {
	if o.closed.Load() {
		return ErrClosed
	}
	if !o.syncing.CompareAndSwap(false, true) {
		return nil
	}
	defer o.syncing.Store(false)

	report, err := o.guardedCycle(ctx)
	if err != nil {
		o.failCycle(err)
		return err
	}
	o.finishCycle(report)
	return nil
}

// guardedCycle runs one cycle, converting panics into cycle errors so they
// surface as sync-error events like any other failure.
func (o *Orchestrator) guardedCycle(ctx context.Context) (report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync cycle panicked: %v", r)
		}
	}()
	return o.runCycle(ctx)
}

// runCycle collects dirty entries, ships them in batches and routes
// conflicts through the resolver.
func (o *Orchestrator) runCycle(ctx context.Context) (Report, error) {
	queued := o.intake.Drain()
	dirty := o.collectDirty()
	Logger.Debugf("sync cycle: %d queued notifications, %d dirty entries", len(queued), len(dirty))

	report := Report{Timestamp: time.Now()}
	for start := 0; start < len(dirty); start += o.opts.BatchSize {
		end := start + o.opts.BatchSize
		if end > len(dirty) {
			end = len(dirty)
		}
		if err := o.processBatch(ctx, dirty[start:end], &report); err != nil {
			return Report{}, err
		}
	}
	return report, nil
}

// processBatch ships one batch and applies its outcome. A transport failure
// after all retries is recorded as a batch error without failing the cycle;
// an exhausted conflict resolution fails the cycle.
func (o *Orchestrator) processBatch(ctx context.Context, batch []Change, report *Report) error {
	byKey := make(map[string]Change, len(batch))
	for _, ch := range batch {
		byKey[ch.Entry.Key] = ch
	}

	res, err := o.sendWithRetry(ctx, batch)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("sync cycle cancelled: %w", ctx.Err())
		}
		Logger.Warningf("batch of %d changes failed after %d attempts: %v", len(batch), o.opts.RetryAttempts, err)
		report.BatchErrors++
		o.cBatchErrs.Inc()
		return nil
	}

	for _, a := range res.Applied {
		ch, ok := byKey[a.Key]
		if !ok {
			continue
		}
		o.shadow.Store(a.Key, syncedState{
			Version:       ch.Entry.Version,
			Value:         ch.Entry.Value,
			RemoteVersion: a.Version,
		})
		report.ChangesProcessed++
		o.cChanges.Inc()
	}

	for _, be := range res.Errors {
		Logger.Warningf("peer rejected change for %q: %s", be.Key, be.Message)
		report.BatchErrors++
		o.cBatchErrs.Inc()
	}

	for _, c := range res.Conflicts {
		if err := o.resolveAndApply(c, res.ConflictVersions); err != nil {
			return err
		}
		report.ConflictsResolved++
		o.cConflicts.Inc()
	}
	return nil
}

// resolveAndApply resolves one conflict and writes the result back into the
// store. The resolved value bumps the local version, so the key stays dirty
// and converges on the next cycle.
func (o *Orchestrator) resolveAndApply(c resolve.Conflict, versions map[string]uint64) error {
	resolution, err := o.resolver.ResolveConflict(c)
	if err != nil {
		return fmt.Errorf("conflict on %q: %w", c.Key, err)
	}

	// remember the peer's version so the re-push passes its version check
	if remote, ok := versions[c.Key]; ok {
		shadow, _ := o.shadow.Load(c.Key)
		shadow.RemoteVersion = remote
		shadow.Value = c.ServerValue
		o.shadow.Store(c.Key, shadow)
	}

	meta := map[string]string{"resolution_source": resolution.Source}
	if _, err := o.store.Set(c.Key, resolution.Value, &state.SetOptions{
		Source:   state.SourceResolution,
		Metadata: meta,
	}); err != nil {
		return fmt.Errorf("writing resolution for %q back: %w", c.Key, err)
	}
	return nil
}

// collectDirty returns every entry whose version moved past the last
// successful sync, sorted by key.
func (o *Orchestrator) collectDirty() []Change {
	var dirty []Change
	for _, entry := range o.store.Entries() {
		shadow, synced := o.shadow.Load(entry.Key)
		if synced && shadow.Version == entry.Version {
			continue
		}

		ch := Change{Entry: entry, RemoteVersion: shadow.RemoteVersion}
		if o.opts.EnableDeltaUpdates && synced {
			d := value.Compute(shadow.Value, entry.Value)
			ch.Delta = &d
		}
		dirty = append(dirty, ch)
	}
	return dirty
}

// sendWithRetry ships one batch with the configured retry budget.
func (o *Orchestrator) sendWithRetry(ctx context.Context, batch []Change) (BatchResult, error) {
	var lastErr error
	for attempt := 1; attempt <= o.opts.RetryAttempts; attempt++ {
		res, err := o.transport.SendBatch(ctx, batch)
		if err == nil {
			return res, nil
		}
		lastErr = err
		Logger.Debugf("batch send attempt %d/%d failed: %v", attempt, o.opts.RetryAttempts, err)

		if ctx.Err() != nil {
			return BatchResult{}, ctx.Err()
		}
	}
	return BatchResult{}, lastErr
}

// finishCycle records a successful cycle and publishes sync-complete.
func (o *Orchestrator) finishCycle(report Report) {
	o.cCycles.Inc()
	o.lastMu.Lock()
	o.lastSync = report.Timestamp
	o.lastMu.Unlock()

	o.store.SetMeta("sync_status", "ok")
	o.store.SetMeta("last_sync", report.Timestamp.Format(time.RFC3339Nano))

	if _, err := o.bus.Publish(EventSyncComplete, report, nil); err != nil {
		Logger.Warningf("publishing sync-complete failed: %v", err)
	}
	if o.opts.OnSyncComplete != nil {
		o.opts.OnSyncComplete(report)
	}
}

// failCycle records a failed cycle and publishes sync-error.
func (o *Orchestrator) failCycle(err error) {
	o.cCycles.Inc()
	o.cErrors.Inc()
	Logger.Errorf("sync cycle failed: %v", err)

	o.store.SetMeta("sync_status", "error")

	report := ErrorReport{Timestamp: time.Now(), Error: err.Error()}
	if _, perr := o.bus.Publish(EventSyncError, report, nil); perr != nil {
		Logger.Warningf("publishing sync-error failed: %v", perr)
	}
}

// --------------------------------------------------------------------------
// Periodic Loop
// --------------------------------------------------------------------------

// Start launches the periodic sync loop. A second Start without a Stop in
// between is a no-op.
func (o *Orchestrator) Start() {
	if o.closed.Load() {
		return
	}
	if !o.loopRunning.CompareAndSwap(false, true) {
		return
	}
	o.stopCh = make(chan struct{})
	go o.loop(o.stopCh)
	Logger.Infof("periodic sync started, interval %v", o.opts.SyncInterval)
}

func (o *Orchestrator) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(o.opts.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := o.Sync(context.Background()); err != nil {
				Logger.Errorf("periodic sync failed: %v", err)
			}
		case <-stop:
			return
		}
	}
}

// Stop halts the periodic sync loop. A running cycle finishes on its own.
func (o *Orchestrator) Stop() {
	if !o.loopRunning.CompareAndSwap(true, false) {
		return
	}
	close(o.stopCh)
	Logger.Infof("periodic sync stopped")
}

// --------------------------------------------------------------------------
// Statistics and Teardown
// --------------------------------------------------------------------------

// Statistics returns a snapshot of the orchestrator counters.
func (o *Orchestrator) Statistics() Statistics {
	o.lastMu.Lock()
	last := o.lastSync
	o.lastMu.Unlock()

	return Statistics{
		LastSuccessfulSync: last,
		CyclesRun:          o.cCycles.Get(),
		SyncErrors:         o.cErrors.Get(),
		ChangesProcessed:   o.cChanges.Get(),
		ConflictsResolved:  o.cConflicts.Get(),
		BatchErrors:        o.cBatchErrs.Get(),
		QueuedChanges:      o.intake.Len(),
		Syncing:            o.syncing.Load(),
	}
}

// WritePrometheus writes the orchestrator counters in Prometheus text
// format.
func (o *Orchestrator) WritePrometheus(w io.Writer) {
	o.set.WritePrometheus(w)
}

// Destroy stops the loop, detaches from the bus and rejects further cycles.
// Idempotent.
func (o *Orchestrator) Destroy() {
	if !o.closed.CompareAndSwap(false, true) {
		return
	}
	o.Stop()
	o.bus.Unsubscribe(o.subID)
	o.intake.Close()
}
