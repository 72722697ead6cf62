// Package state implements the versioned key-value store at the core of
// accord. Every write is stamped with a store-wide monotonically increasing
// version, snapshotted into a bounded history ring and announced synchronously
// to per-key subscribers, which makes the store the single source of truth the
// sync machinery reasons about.
//
// The package focuses on:
//   - Versioned writes with a store-scoped atomic version counter
//   - A bounded FIFO history of updates including the previous value
//   - Synchronous per-key subscriptions with priorities and filters
//   - Non-atomic batches that share one batch id
//   - Merging a remote snapshot with version-based conflict detection
//
// Key Components:
//
//   - Store: The store itself. Created with New, configured through Options
//     (history size, default merge strategy, versioning, auto-sync hint).
//
//   - Entry: The stored record for a key: value, version, timestamp, metadata
//     and the source of the write (client/server/merge/conflict-resolution).
//
//   - Update: The notification payload passed to subscribers and update
//     hooks. Updates carry the update id, the batch id when the write was
//     part of a batch, and the same metadata as the entry.
//
//   - Subscriptions: Subscribers register per key with a priority and an
//     optional filter. On every write the matching subscribers run
//     synchronously in descending priority order (ties in registration
//     order); a filter that rejects the update skips that subscriber
//     silently. Store-level update hooks run after the per-key subscribers
//     and are the attachment point for the event-bus bridge.
//
// Version Semantics:
//
//	The version counter is shared across all keys and increases by exactly one
//	per successful write, never per key. A version is never reused, which lets
//	the sync orchestrator detect dirty entries by comparing an entry's version
//	against the last version it pushed for that key.
//
// Thread Safety:
//
//	All operations are safe for concurrent use. Writes serialize on an
//	internal mutex; subscriber callbacks run outside the lock on the writing
//	goroutine, so callbacks may call back into the store. A panicking
//	subscriber is recovered and logged, never propagated to the writer.
package state
