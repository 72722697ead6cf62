// Package server implements the server side of the remote synchronization
// exchange. It answers sync requests pushed by remote clients against a
// server-owned state store and reports the per-change outcomes back.
//
// The package focuses on:
//   - Server-side handling of pushed change batches
//   - Optimistic version checking to detect concurrent divergence
//   - Delta application with a full-value fallback
//   - Isolation of per-change failures from the rest of the batch
//
// Key Components:
//
//   - NewSyncServer: Factory function creating a configured server around a
//     state.Store with the specified transport and codec.
//
//   - SyncServer.Serve: Initializes logging and starts the transport layer.
//
// Each pushed change carries the server version the client last saw for the
// key. A server entry that moved past that version with a different value is
// reported as a conflict, carrying the server's current value, timestamp and
// version; the client resolves it and pushes the resolution in a later
// batch. All other changes are applied to the store and acknowledged with
// the new server version.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Endpoint: "0.0.0.0:8080",
//	  LogLevel: "info",
//	}
//
//	s := server.NewSyncServer(
//	  config,
//	  store,
//	  httpt.NewHTTPServerTransport(),
//	  codec.NewJSONCodec(),
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	The server is thread-safe and can handle concurrent requests. Each
//	request is processed independently; the version check and the write it
//	guards are not atomic against each other, concurrent pushes for the
//	same key reconcile through the conflict path of a later batch.
//	The Serve method should be called only once.
package server
