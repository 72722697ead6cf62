// Package tcpt implements a TCP socket transport for the sync engine. It
// provides concrete implementations of the framed package's connector
// interfaces optimized for TCP connections.
//
// This package builds on the framed package's transport functionality,
// inheriting its performance optimizations including connection pooling,
// buffer reuse and response correlation. See the framed package documentation
// for detailed information on the underlying transport mechanisms.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of framed.ClientConnector
//
//   - serverConnector: TCP-specific implementation of framed.ServerConnector
//
// Accepted and dialed connections are tuned through common.SocketConfig,
// covering Nagle's algorithm, kernel buffer sizes and TCP keep-alive. The
// default server buffer size is set to 512 KB, which provides good
// performance for typical workloads.
package tcpt
