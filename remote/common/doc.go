// Package common provides core data structures and utilities shared across
// the remote synchronization layer. It defines the wire protocol,
// configuration structures, and the logging setup used by the other remote
// packages.
//
// The package focuses on:
//   - Message protocol definition for the client/server sync exchange
//   - Configuration structures for client and server components
//   - Conversions between wire types and the engine's native types
//   - Custom logging implementation shared by all packages
//
// Key Components:
//
//   - Message: Core data structure for all communication between client and
//     server, with a flexible structure that adapts to different message
//     types. Includes factory methods for creating various request and
//     response messages.
//
//   - MessageType: Enumeration defining all supported operation types,
//     categorized into synchronization operations and control messages.
//
//   - WireChange/WireApplied/WireConflict/WireError: Wire representations of
//     one pushed change and the three outcomes a server can report for it.
//
//   - ServerConfig: Configuration for sync server nodes, including state
//     engine parameters, network settings and storage location.
//
//   - ClientConfig: Configuration for client components, controlling
//     connection parameters, timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation that provides consistent
//     formatting across the application.
package common
