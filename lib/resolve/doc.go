// Package resolve turns a pair of divergent values for the same key into a
// single resolved value by dispatching to a named strategy. It is a pure
// strategy registry with a bounded resolution history, no state machine and
// no I/O.
//
// The package focuses on:
//   - Strategy selection (forced strategy, then auto-merge when a merge rule
//     covers the conflict's data type, then the configured default)
//   - Built-in strategies: server-wins, client-wins, last-write-wins and
//     auto-merge
//   - Type-directed merge rules for arrays (set union), objects (shallow
//     merge) and strings (delimited concatenation)
//   - Runtime registration of custom strategies and merge rules
//   - Bounded resolution history and per-strategy statistics
//
// Key Components:
//
//   - Resolver: Created with New, configured through Options (default
//     strategy, retry budget, merge rules toggle, history tracking).
//
//   - Strategy: A named pure function from a Conflict to a Resolution.
//     Failing strategies are retried against the same conflict until the
//     retry budget is exhausted, after which a ResolutionError reaches the
//     caller.
//
//   - MergeRule: A pure function combining a server and a client value of
//     one data type, invoked by the auto-merge strategy.
//
// Thread Safety:
//
//	All operations are safe for concurrent use. Strategies and merge rules
//	must be pure or otherwise safe to call from multiple goroutines.
package resolve
