// Package value provides the tagged value representation used for all state
// payloads in accord. Every payload is one of six variants (nil, bool, number,
// string, array, object), mirroring the JSON data model, so that merge rules,
// conflict resolution and delta computation can dispatch on an explicit tag
// instead of runtime type inspection.
//
// The package focuses on:
//   - A compact tagged union (Value) with constructors for each variant
//   - Deep equality and deep cloning for immutable usage patterns
//   - JSON marshalling that encodes values as their natural JSON form
//   - Structural deltas (Delta) that describe the difference between two
//     values and can reconstruct the new value from the old one
//
// Key Components:
//
//   - Value: The tagged union. Exactly one variant field is meaningful,
//     selected by the Kind tag. Values are treated as immutable throughout
//     accord; use Clone before modifying nested data.
//
//   - DataType: The coarse type class (scalar/string/array/object) used by
//     merge rules and conflict resolution. Nil, booleans and numbers all
//     collapse into "scalar" since none of them have mergeable structure.
//
//   - Delta: A structural diff between two values. Object deltas record
//     per-field transitions plus removed fields, array deltas record a
//     membership summary (added/removed) plus positional rewrites, and
//     everything else is a plain old/new replacement. Apply reconstructs
//     the new value exactly: Apply(prev, Compute(prev, next)) == next.
//
// Thread Safety:
//
//	Values are plain data and safe for concurrent reads. They must not be
//	mutated after being handed to a store, bus or resolver; Clone exists for
//	callers that need a private mutable copy.
package value
