// Package httpt implements an HTTP-based transport layer for the remote
// synchronization exchange. It provides concrete implementations of the
// transport interfaces defined in the parent package, enabling communication
// between clients and servers over HTTP.
//
// The package focuses on:
//   - Client-side HTTP transport for sending sync requests to servers
//   - Server-side HTTP transport for receiving and handling sync requests
//   - Round-robin load balancing across multiple server endpoints
//
// Key Components:
//
//   - httpClientTransport: Implements the ClientTransport interface, managing
//     connections to server endpoints and implementing retry mechanisms. It
//     uses round-robin selection for load balancing across multiple server
//     endpoints.
//
//   - httpServerTransport: Implements the ServerTransport interface, setting
//     up an HTTP server that routes incoming POST /sync requests to the
//     registered handler.
//
// Thread Safety:
//
//	The client transport is thread-safe and can be used concurrently. It uses
//	atomic operations for the round-robin counter to ensure thread safety when
//	selecting server endpoints.
//
// This implementation offers several advantages:
//   - Simple integration with existing HTTP infrastructure
//   - Built-in load balancing across multiple server endpoints
//   - Straightforward error handling and retry mechanisms
//   - Logging middleware for request monitoring
package httpt
