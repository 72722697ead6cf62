package state

import (
	"fmt"
	"sort"

	"github.com/accordlabs/accord/lib/value"
)

// Merge reconciles an incoming snapshot (typically pulled from a server) with
// the local state. A key conflicts when both the local entry and the incoming
// entry carry nonzero versions that differ and versioning is enabled;
// non-conflicting keys are written directly.
//
// Conflicting keys are reconciled with the configured merge strategy:
//
//   - last-write-wins: the entry with the newer timestamp is kept, the
//     incoming side wins ties
//   - server-wins: the incoming entry is kept
//   - field-merge: objects are shallow-merged with incoming fields
//     overriding; anything else falls back to last-write-wins
//
// All writes performed by Merge carry SourceMerge. Merge processes keys in
// sorted order and is not atomic with respect to concurrent writers.
func (s *Store) Merge(incoming map[string]Entry, opts *MergeOptions) (MergeResult, error) {
	if s.closed.Load() {
		return MergeResult{}, ErrClosed
	}

	strategy := s.opts.MergeStrategy
	if opts != nil && opts.Strategy != "" {
		strategy = opts.Strategy
	}
	switch strategy {
	case MergeLastWriteWins, MergeServerWins, MergeFieldMerge:
	default:
		return MergeResult{}, fmt.Errorf("%w: %q", ErrUnknownMergeStrategy, strategy)
	}

	keys := make([]string, 0, len(incoming))
	for k := range incoming {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var res MergeResult
	for _, k := range keys {
		in := incoming[k]

		cur, exists := s.GetEntry(k)
		conflict := exists &&
			s.opts.EnableVersioning &&
			cur.Version != 0 && in.Version != 0 &&
			cur.Version != in.Version

		if !conflict {
			if _, err := s.Set(k, in.Value, &SetOptions{Source: SourceMerge, Metadata: in.Metadata}); err != nil {
				return res, err
			}
			res.Updates++
			continue
		}

		res.Conflicts++
		Logger.Debugf("merge conflict on key %q (local v%d, incoming v%d), strategy %s",
			k, cur.Version, in.Version, strategy)

		merged, write := mergeEntries(strategy, cur, in)
		if !write {
			continue
		}
		if _, err := s.Set(k, merged, &SetOptions{Source: SourceMerge, Metadata: in.Metadata}); err != nil {
			return res, err
		}
		res.Updates++
	}
	return res, nil
}

// mergeEntries reconciles one conflicting key. The boolean reports whether
// the store needs a write (false = the local entry already wins).
func mergeEntries(strategy MergeStrategy, cur, in Entry) (value.Value, bool) {
	switch strategy {
	case MergeServerWins:
		return in.Value, true

	case MergeFieldMerge:
		if cur.Value.Kind == value.KindObject && in.Value.Kind == value.KindObject {
			obj := make(map[string]value.Value, len(cur.Value.Obj)+len(in.Value.Obj))
			for k, v := range cur.Value.Obj {
				obj[k] = v
			}
			for k, v := range in.Value.Obj {
				obj[k] = v
			}
			return value.Object(obj), true
		}
		// no object structure to merge on at least one side
		return lastWriteWins(cur, in)

	default: // MergeLastWriteWins, validated by Merge
		return lastWriteWins(cur, in)
	}
}

func lastWriteWins(cur, in Entry) (value.Value, bool) {
	// the incoming side wins ties
	if in.Timestamp.Before(cur.Timestamp) {
		return cur.Value, false
	}
	return in.Value, true
}
