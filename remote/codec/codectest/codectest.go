package codectest

import (
	"reflect"
	"testing"
	"time"

	"github.com/accordlabs/accord/lib/value"
	"github.com/accordlabs/accord/remote/codec"
	"github.com/accordlabs/accord/remote/common"
)

// CodecFactory is a function that creates a new instance of a Codec implementation
type CodecFactory func() codec.Codec

// RunCodecTests runs a conformance test suite for a Codec implementation.
func RunCodecTests(t *testing.T, name string, factory CodecFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("RoundTrip", func(t *testing.T) {
			testRoundTrip(t, factory())
		})

		t.Run("MessageTypes", func(t *testing.T) {
			testMessageTypes(t, factory())
		})

		t.Run("ValueFidelity", func(t *testing.T) {
			testValueFidelity(t, factory())
		})

		t.Run("DeltaFidelity", func(t *testing.T) {
			testDeltaFidelity(t, factory())
		})

		t.Run("CorruptInput", func(t *testing.T) {
			testCorruptInput(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Fixtures
// --------------------------------------------------------------------------

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	ts := time.Unix(1712000000, 123456789).UTC()
	delta := value.Compute(value.Int(1), value.Int(2))

	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Ping request
		*common.NewPingRequest(),

		// Sync request
		*common.NewSyncRequest("batch-7", []common.WireChange{
			{
				Key:       "counter",
				Value:     value.Int(2),
				Version:   4,
				Timestamp: ts,
				Metadata:  map[string]string{"origin": "test"},
				Delta:     &delta,

				RemoteVersion: 3,
			},
			{
				Key:       "profile",
				Value:     value.Object(map[string]value.Value{"name": value.String("accord"), "tags": value.Array(value.String("a"), value.String("b"))}),
				Version:   1,
				Timestamp: ts,
			},
		}),

		// Sync response
		*common.NewSyncResponse(
			"batch-7",
			[]common.WireApplied{{Key: "counter", Version: 5}},
			[]common.WireConflict{{
				Key:             "profile",
				ServerValue:     value.String("server text"),
				ClientValue:     value.String("client text"),
				ServerTimestamp: ts,
				ClientTimestamp: ts.Add(time.Second),
				ServerVersion:   9,
			}},
			[]common.WireError{{Key: "bad", Message: "cannot apply"}},
		),

		// Error response
		*common.NewErrorResponse("test error message"),
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testRoundTrip(t *testing.T, c codec.Codec) {
	for i, msg := range testMessages() {
		data, err := c.Encode(&msg)
		if err != nil {
			t.Errorf("Failed to encode message %d: %v", i, err)
			continue
		}

		var result common.Message
		if err := c.Decode(data, &result); err != nil {
			t.Errorf("Failed to decode message %d: %v", i, err)
			continue
		}

		if !reflect.DeepEqual(msg, result) {
			t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
				i, msg, result)
		}
	}
}

func testMessageTypes(t *testing.T, c codec.Codec) {
	// Test each message type (don't test MsgTUnknown since decoding it should raise an error)
	for msgType := common.MsgTSuccess; msgType <= common.MsgTGet; msgType++ {
		msg := common.Message{MsgType: msgType}

		data, err := c.Encode(&msg)
		if err != nil {
			t.Errorf("Failed to encode message type %s: %v", msgType.String(), err)
			continue
		}

		var result common.Message
		if err := c.Decode(data, &result); err != nil {
			t.Errorf("Failed to decode message type %s: %v", msgType.String(), err)
			continue
		}

		if result.MsgType != msgType {
			t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
				msgType.String(), result.MsgType.String())
		}
	}
}

func testValueFidelity(t *testing.T, c codec.Codec) {
	cases := []struct {
		name string
		val  value.Value
	}{
		{"Nil", value.Nil()},
		{"Bool", value.Bool(true)},
		{"Zero", value.Number(0)},
		{"Negative", value.Number(-3.5)},
		{"LargeInt", value.Int(9007199254740991)},
		{"Unicode", value.String("héllo \"quoted\"\nline")},
		{"Nested", value.Object(map[string]value.Value{
			"list": value.Array(value.Int(1), value.Nil(), value.Object(map[string]value.Value{"deep": value.Bool(false)})),
			"text": value.String("x"),
		})},
	}

	for _, tc := range cases {
		msg := common.NewSyncRequest("b", []common.WireChange{{Key: "k", Value: tc.val, Version: 1}})

		data, err := c.Encode(msg)
		if err != nil {
			t.Errorf("%s: failed to encode: %v", tc.name, err)
			continue
		}

		var result common.Message
		if err := c.Decode(data, &result); err != nil {
			t.Errorf("%s: failed to decode: %v", tc.name, err)
			continue
		}

		if len(result.Changes) != 1 {
			t.Errorf("%s: expected 1 change, got %d", tc.name, len(result.Changes))
			continue
		}

		if !result.Changes[0].Value.Equal(tc.val) {
			t.Errorf("%s: value doesn't match after round trip: expected %s, got %s",
				tc.name, tc.val, result.Changes[0].Value)
		}
	}
}

func testDeltaFidelity(t *testing.T, c codec.Codec) {
	prev := value.Object(map[string]value.Value{"a": value.Int(1), "b": value.String("old")})
	next := value.Object(map[string]value.Value{"a": value.Int(1), "b": value.String("new"), "c": value.Bool(true)})
	delta := value.Compute(prev, next)

	msg := common.NewSyncRequest("b", []common.WireChange{
		{Key: "doc", Value: next, Version: 2, Delta: &delta, RemoteVersion: 1},
	})

	data, err := c.Encode(msg)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	var result common.Message
	if err := c.Decode(data, &result); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}

	if len(result.Changes) != 1 || result.Changes[0].Delta == nil {
		t.Fatalf("Delta lost in round trip: %+v", result.Changes)
	}

	patched, err := value.Apply(prev, *result.Changes[0].Delta)
	if err != nil {
		t.Fatalf("Failed to apply decoded delta: %v", err)
	}
	if !patched.Equal(next) {
		t.Errorf("Decoded delta produces %s, expected %s", patched, next)
	}
}

func testCorruptInput(t *testing.T, c codec.Codec) {
	cases := []struct {
		name string
		data []byte
	}{
		{"Empty", []byte{}},
		{"Truncated", []byte("{")},
	}

	for _, tc := range cases {
		var msg common.Message
		if err := c.Decode(tc.data, &msg); err == nil {
			t.Errorf("%s: expected error but got none", tc.name)
		}
	}
}
