// Package syncmgr drives the synchronization of local state against a
// remote peer. It ties the other accord components together: changes enter
// the state store, flow over the event bus into the orchestrator's intake
// queue, and are pushed to the remote side in batches on each sync cycle.
// Conflicts reported by the remote side run through the conflict resolver
// and the resolved values are written back into the store.
//
// The package focuses on:
//   - Non-reentrant sync cycles guarded by an atomic busy flag: a Sync call
//     while a cycle is running is a silent no-op, never queued
//   - Dirty tracking by version: an entry is dirty when its store version
//     differs from the version recorded at its last successful sync
//   - Fixed-size batching with per-batch failure isolation and a bounded
//     retry budget per batch
//   - Optional delta updates that ship a compact diff against the last
//     synced value alongside the full value
//   - Cycle results republished as sync-complete / sync-error events
//
// Key Components:
//
//   - Orchestrator: Created with New from a state store, an event bus, a
//     conflict resolver and a Transport. Runs on demand through Sync or
//     periodically through Start/Stop.
//
//   - Transport: The collaborator that moves a batch of changes to the
//     remote peer and reports applied changes, conflicts and errors back.
//     The remote packages provide implementations; tests supply fakes.
//
//   - intakeQueue: A lock-free multi-producer queue buffering change
//     notifications between cycles. Producers are bus delivery goroutines,
//     the single consumer is the running cycle, serialized by the busy
//     guard.
//
// Thread Safety:
//
//	All operations are safe for concurrent use. At most one sync cycle is
//	active per orchestrator at any time.
package syncmgr
