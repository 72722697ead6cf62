package resolve

import (
	"fmt"
	"time"

	"github.com/accordlabs/accord/lib/value"
)

// --------------------------------------------------------------------------
// Built-in Strategies
// --------------------------------------------------------------------------

// serverWins resolves to the server value unchanged.
func serverWins(c Conflict) (Resolution, error) {
	return Resolution{Value: c.ServerValue, Source: SourceServer, Metadata: c.Metadata}, nil
}

// clientWins resolves to the client value unchanged.
func clientWins(c Conflict) (Resolution, error) {
	return Resolution{Value: c.ClientValue, Source: SourceClient, Metadata: c.Metadata}, nil
}

// lastWriteWins resolves to the most recently written value. Equal
// timestamps favor the server.
func lastWriteWins(c Conflict) (Resolution, error) {
	if !c.ServerTimestamp.Before(c.ClientTimestamp) {
		return Resolution{Value: c.ServerValue, Source: SourceServer, Metadata: c.Metadata}, nil
	}
	return Resolution{Value: c.ClientValue, Source: SourceClient, Metadata: c.Metadata}, nil
}

// autoMerge dispatches to the merge rule registered for the conflict's data
// type. Without a covering rule the attempt fails and is retried, so a rule
// registered in the meantime can still take over.
func (r *Resolver) autoMerge(c Conflict) (Resolution, error) {
	rule, ok := r.rules.Load(c.DataType)
	if !ok {
		return Resolution{}, fmt.Errorf("no merge rule for data type %q", c.DataType)
	}
	merged, err := rule(c.ServerValue, c.ClientValue)
	if err != nil {
		return Resolution{}, fmt.Errorf("merge rule for %q: %w", c.DataType, err)
	}
	return Resolution{Value: merged, Source: SourceMerged, Metadata: c.Metadata}, nil
}

// --------------------------------------------------------------------------
// Built-in Merge Rules
// --------------------------------------------------------------------------

// mergeArrays unions both arrays preserving first-seen order: all server
// elements, then every client element not already present. Re-merging the
// result with either input leaves it unchanged.
func mergeArrays(server, client value.Value) (value.Value, error) {
	out := make([]value.Value, 0, len(server.Arr)+len(client.Arr))
	for _, el := range server.Arr {
		if value.Index(out, el) < 0 {
			out = append(out, el.Clone())
		}
	}
	for _, el := range client.Arr {
		if value.Index(out, el) < 0 {
			out = append(out, el.Clone())
		}
	}
	return value.Array(out...), nil
}

// mergeObjects merges shallowly with client fields overriding server fields
// and stamps _metadata.mergedAt with the merge time in unix milliseconds.
func mergeObjects(server, client value.Value) (value.Value, error) {
	out := make(map[string]value.Value, len(server.Obj)+len(client.Obj)+1)
	for k, v := range server.Obj {
		out[k] = v.Clone()
	}
	for k, v := range client.Obj {
		out[k] = v.Clone()
	}

	meta := make(map[string]value.Value, 1)
	if prev, ok := out["_metadata"]; ok && prev.Kind == value.KindObject {
		for k, v := range prev.Obj {
			meta[k] = v
		}
	}
	meta["mergedAt"] = value.Number(float64(time.Now().UnixMilli()))
	out["_metadata"] = value.Object(meta)

	return value.Object(out), nil
}

// mergeStrings concatenates server and client values joined by the
// configured delimiter.
func mergeStrings(delimiter string) MergeRule {
	return func(server, client value.Value) (value.Value, error) {
		return value.String(server.Str + delimiter + client.Str), nil
	}
}
