// Package transport defines the interfaces and abstractions for the remote
// synchronization exchange. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Enabling multiple transport implementations (HTTP, TCP, Unix sockets,
//     in-process)
//   - Providing a loopback pair for tests and single-process composition
//
// Key Components:
//
//   - ClientTransport: Interface for client-side transport implementations
//     that handles connection management and request sending.
//
//   - ServerTransport: Interface for server-side transport implementations
//     that receives requests and routes them to the registered handler.
//
//   - HandleFunc: Function type for request handling callbacks.
//
//   - NewLoopback: Factory for a connected in-process transport pair.
package transport
