package codec

// Codec is the interface for all message codecs
type Codec interface {
	// Name returns the codec name, used for content negotiation and logging
	Name() string
	// Encode serializes a value into a byte array
	// It returns the serialized byte array and an error if any
	Encode(v any) ([]byte, error)
	// Decode deserializes a byte array into the value pointed to by v
	// It takes a byte array and a pointer as parameters
	// It returns an error if any
	Decode(b []byte, v any) error
}
