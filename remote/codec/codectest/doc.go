// Package codectest provides a standardised conformance test suite for
// codec implementations that satisfy the codec.Codec interface.
//
// The suite verifies:
//   - Round trips of every protocol message shape
//   - Faithful encoding of tagged values, including deep nesting
//   - Faithful encoding of deltas, checked by applying the decoded delta
//   - Error reporting for corrupt input
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() codec.Codec {
//		return NewMyCodec()
//	}
//
//	// Running the standard test suite
//	codectest.RunCodecTests(t, "MyCodec", factory)
package codectest
