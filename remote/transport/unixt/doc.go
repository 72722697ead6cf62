// Package unixt implements a transport layer for the sync engine using Unix
// domain sockets. It provides optimized communication for client and server
// processes running on the same machine.
//
// This package extends the framed transport layer with Unix socket-specific
// connectors while inheriting all core functionality like connection pooling,
// response correlation and error handling from the framed package.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners and accepts connections
//
// Performance Characteristics:
//
//   - Default buffer size: 64 KB, optimized for local communication patterns
//   - Reduced overhead: Eliminates TCP/IP stack processing
//   - Lower latency: Direct kernel-mediated IPC avoids the network subsystem
package unixt
