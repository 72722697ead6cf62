package server

import (
	"fmt"

	"github.com/accordlabs/accord/lib/state"
	"github.com/accordlabs/accord/lib/value"
	"github.com/accordlabs/accord/remote/common"
)

// handle routes one decoded request to its operation
func (s *SyncServer) handle(req *common.Message) *common.Message {
	// Check for nil store
	if s.store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTSync:
		return s.handleSync(req)
	case common.MsgTGet:
		return s.handleGet(req)
	case common.MsgTPing:
		return common.NewPingResponse()
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("sync server - unsupported message type: %s", req.MsgType),
		)
	}
}

// handleGet reads one entry. A missing key yields an empty response.
func (s *SyncServer) handleGet(req *common.Message) *common.Message {
	if len(req.Changes) == 0 || req.Changes[0].Key == "" {
		return common.NewErrorResponse("get request without a key")
	}

	key := req.Changes[0].Key
	entry, ok := s.store.GetEntry(key)
	if !ok {
		return common.NewGetResponse(nil)
	}
	return common.NewGetResponse(&common.WireChange{
		Key:       entry.Key,
		Value:     entry.Value,
		Version:   entry.Version,
		Timestamp: entry.Timestamp,
		Metadata:  entry.Metadata,
	})
}

// handleSync applies every change of one batch and collects the outcomes
func (s *SyncServer) handleSync(req *common.Message) *common.Message {
	var (
		applied   []common.WireApplied
		conflicts []common.WireConflict
		errs      []common.WireError
	)

	for _, change := range req.Changes {
		a, c, e := s.applyChange(change)
		switch {
		case a != nil:
			applied = append(applied, *a)
		case c != nil:
			conflicts = append(conflicts, *c)
		case e != nil:
			errs = append(errs, *e)
		}
	}

	Logger.Debugf("Sync batch %s: %d applied, %d conflicts, %d errors",
		req.BatchID, len(applied), len(conflicts), len(errs))

	return common.NewSyncResponse(req.BatchID, applied, conflicts, errs)
}

// applyChange applies one pushed change against the store. Exactly one of
// the three return values is set.
func (s *SyncServer) applyChange(change common.WireChange) (applied *common.WireApplied, conflict *common.WireConflict, failed *common.WireError) {
	// One change must never take the whole batch down
	defer func() {
		if r := recover(); r != nil {
			applied, conflict = nil, nil
			failed = &common.WireError{Key: change.Key, Message: fmt.Sprintf("apply panicked: %v", r)}
		}
	}()

	if change.Key == "" {
		return nil, nil, &common.WireError{Message: "change without a key"}
	}

	entry, exists := s.store.GetEntry(change.Key)

	// The push carries the server version the client last saw. An entry
	// that moved past it with a different value is a conflict.
	if exists && entry.Version != change.RemoteVersion && !entry.Value.Equal(change.Value) {
		return nil, &common.WireConflict{
			Key:             change.Key,
			ServerValue:     entry.Value,
			ClientValue:     change.Value,
			ServerTimestamp: entry.Timestamp,
			ClientTimestamp: change.Timestamp,
			ServerVersion:   entry.Version,
		}, nil
	}

	// Prefer the delta when it applies cleanly against the current entry,
	// the full value is the fallback.
	next := change.Value
	if change.Delta != nil && exists {
		if patched, err := value.Apply(entry.Value, *change.Delta); err == nil {
			next = patched
		} else {
			Logger.Warningf("Delta for %q does not apply, falling back to the full value: %v", change.Key, err)
		}
	}

	if _, err := s.store.Set(change.Key, next, &state.SetOptions{
		Source:   state.SourceClient,
		Metadata: change.Metadata,
	}); err != nil {
		return nil, nil, &common.WireError{Key: change.Key, Message: err.Error()}
	}

	// Report the version the write produced
	entry, _ = s.store.GetEntry(change.Key)
	return &common.WireApplied{Key: change.Key, Version: entry.Version}, nil, nil
}
