// Package cmd implements the command-line interface for the accord state
// synchronization engine. It provides a hierarchical command structure with
// operations for running the sync server and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for state operations (set, get, sync, status, perf)
//   - events: Commands for inspecting a persisted event log
//   - serve: Commands for starting and configuring the accord server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See accord -help for a list of all commands.
package cmd
