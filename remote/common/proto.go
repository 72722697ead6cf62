package common

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/accordlabs/accord/lib/resolve"
	"github.com/accordlabs/accord/lib/syncmgr"
	"github.com/accordlabs/accord/lib/value"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Sync request fields
	BatchID string       `json:"batch_id,omitempty"` // Used for: Sync requests, echoed in responses
	Changes []WireChange `json:"changes,omitempty"`  // Used for: Sync requests

	// Sync response fields
	Applied   []WireApplied  `json:"applied,omitempty"`
	Conflicts []WireConflict `json:"conflicts,omitempty"`
	Errors    []WireError    `json:"errors,omitempty"`

	// Err is empty if no error occurred, otherwise it contains the error message
	Err string `json:"err,omitempty"`
}

// --------------------------------------------------------------------------
// Wire Types
// --------------------------------------------------------------------------

// WireChange is the wire representation of one pushed entry.
type WireChange struct {
	Key       string            `json:"key"`
	Value     value.Value       `json:"value"`
	Version   uint64            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// Delta is the diff against the value at the last successful sync.
	// Present only in delta mode and only for keys that synced before.
	Delta *value.Delta `json:"delta,omitempty"`

	// RemoteVersion is the server version the client saw for this key at
	// its last successful sync, zero for never-synced keys.
	RemoteVersion uint64 `json:"remote_version"`
}

// WireApplied reports one change the server accepted.
type WireApplied struct {
	Key string `json:"key"`

	// Version is the server's new version for the key.
	Version uint64 `json:"version"`
}

// WireConflict reports one change rejected because the server's entry moved
// past the version the client pushed against. Both sides of the divergence
// are carried so the reply is self-contained.
type WireConflict struct {
	Key             string      `json:"key"`
	ServerValue     value.Value `json:"server_value"`
	ClientValue     value.Value `json:"client_value"`
	ServerTimestamp time.Time   `json:"server_timestamp"`
	ClientTimestamp time.Time   `json:"client_timestamp"`

	// ServerVersion is the version the next push for this key must carry
	// to pass the server's check.
	ServerVersion uint64 `json:"server_version"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// WireError reports one change the server could not apply.
type WireError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewSyncRequest creates a new Sync request carrying one batch of changes
func NewSyncRequest(batchID string, changes []WireChange) *Message {
	return &Message{
		MsgType: MsgTSync,
		BatchID: batchID,
		Changes: changes,
	}
}

// NewSyncResponse creates a new Sync response
func NewSyncResponse(batchID string, applied []WireApplied, conflicts []WireConflict, errs []WireError) *Message {
	return &Message{
		MsgType:   MsgTSync,
		BatchID:   batchID,
		Applied:   applied,
		Conflicts: conflicts,
		Errors:    errs,
	}
}

// NewGetRequest creates a new Get request for a single key
func NewGetRequest(key string) *Message {
	return &Message{
		MsgType: MsgTGet,
		Changes: []WireChange{{Key: key}},
	}
}

// NewGetResponse creates a new Get response. A nil entry means the key is
// not present on the server.
func NewGetResponse(entry *WireChange) *Message {
	msg := &Message{
		MsgType: MsgTGet,
	}
	if entry != nil {
		msg.Changes = []WireChange{*entry}
	}
	return msg
}

// NewPingRequest creates a new Ping request
func NewPingRequest() *Message {
	return &Message{
		MsgType: MsgTPing,
	}
}

// NewPingResponse creates a new Ping response
func NewPingResponse() *Message {
	return &Message{
		MsgType: MsgTPing,
	}
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Engine Conversions
// --------------------------------------------------------------------------

// WireChanges converts one orchestrator batch into its wire representation.
func WireChanges(batch []syncmgr.Change) []WireChange {
	changes := make([]WireChange, len(batch))
	for i, c := range batch {
		changes[i] = WireChange{
			Key:           c.Entry.Key,
			Value:         c.Entry.Value,
			Version:       c.Entry.Version,
			Timestamp:     c.Entry.Timestamp,
			Metadata:      c.Entry.Metadata,
			Delta:         c.Delta,
			RemoteVersion: c.RemoteVersion,
		}
	}
	return changes
}

// BatchResult converts a Sync response into the orchestrator's batch result.
func (m *Message) BatchResult() syncmgr.BatchResult {
	var res syncmgr.BatchResult
	for _, a := range m.Applied {
		res.Applied = append(res.Applied, syncmgr.Applied{Key: a.Key, Version: a.Version})
	}
	for _, c := range m.Conflicts {
		res.Conflicts = append(res.Conflicts, resolve.Conflict{
			Key:             c.Key,
			ServerValue:     c.ServerValue,
			ClientValue:     c.ClientValue,
			ServerTimestamp: c.ServerTimestamp,
			ClientTimestamp: c.ClientTimestamp,
			Metadata:        c.Metadata,
		})
		if res.ConflictVersions == nil {
			res.ConflictVersions = make(map[string]uint64)
		}
		res.ConflictVersions[c.Key] = c.ServerVersion
	}
	for _, e := range m.Errors {
		res.Errors = append(res.Errors, syncmgr.BatchError{Key: e.Key, Message: e.Message})
	}
	return res
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message exchanged between client and server.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTSuccess:
		return "success"
	case MsgTError:
		return "error"
	case MsgTSync:
		return "sync"
	case MsgTPing:
		return "ping"
	case MsgTGet:
		return "get"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "success":
		*t = MsgTSuccess
	case "error":
		*t = MsgTError
	case "sync":
		*t = MsgTSync
	case "ping":
		*t = MsgTPing
	case "get":
		*t = MsgTGet
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Synchronization operations

	MsgTSync // Push a batch of changes and collect the per-change outcomes
	MsgTPing // Health probe
	MsgTGet  // Read a single entry
)
