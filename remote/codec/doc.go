// Package codec provides message serialization capabilities for the remote
// synchronization layer. It defines a common interface and multiple
// implementations for encoding and decoding messages between client and
// server components.
//
// The package focuses on:
//   - Providing a consistent interface for different serialization formats
//   - Offering multiple implementations with different performance characteristics
//   - Supporting faithful encoding of tagged values and deltas on the wire
//
// Key Components:
//
//   - Codec: Core interface that all codec implementations must satisfy.
//
//   - jsonCodecImpl: Implementation using JSON encoding. Human-readable
//     output, useful for debugging and interoperability with peers written
//     in other languages. Values encode as their natural JSON form.
//
//   - gobCodecImpl: Implementation using Go's built-in gob encoding. More
//     compact than JSON for large batches but only usable between Go peers.
//
// Thread Safety:
//
//	All codec implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	Codecs are typically created once and reused throughout the application:
//
//	  c := codec.NewJSONCodec()
//	  data, err := c.Encode(message)
//	  // ... send data ...
//	  var received common.Message
//	  err = c.Decode(receivedData, &received)
package codec
