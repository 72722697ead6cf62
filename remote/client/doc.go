// Package client implements the client side of the remote synchronization
// exchange. It provides an implementation of the syncmgr.Transport interface
// that ships change batches to a remote server via the configured transport.
//
// The package focuses on:
//   - Transparent remote access behind the orchestrator's transport boundary
//   - Integration with the transport and codec layers
//   - Error handling and conversion between wire and engine types
//
// Key Components:
//
//   - NewEndpoint: Factory function that creates a client implementing the
//     syncmgr.Transport interface. The endpoint forwards batches to the
//     remote server via the configured transport layer.
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//	  Endpoints:     []string{"http://localhost:5000"},
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	}
//
//	// Create the endpoint
//	endpoint, _ := client.NewEndpoint(config, httpt.NewHTTPClientTransport(), codec.NewJSONCodec())
//
//	// Hand it to the orchestrator
//	orch, _ := syncmgr.New(store, bus, resolver, endpoint, nil)
//
// Thread Safety:
//
//	The endpoint is thread-safe and can be used concurrently from multiple
//	goroutines without additional synchronization.
package client
