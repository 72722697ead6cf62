package value

import (
	"errors"
	"fmt"
	"sort"
)

// --------------------------------------------------------------------------
// Delta Types
// --------------------------------------------------------------------------

var (
	// ErrDeltaMismatch is returned by Apply when the delta was computed for a
	// different kind of value than the one it is being applied to.
	ErrDeltaMismatch = errors.New("value: delta does not apply to value of this kind")

	// ErrDeltaCorrupt is returned by Apply when the delta is internally
	// inconsistent (for example a positional rewrite outside the new length).
	ErrDeltaCorrupt = errors.New("value: delta is corrupt")
)

// DeltaKind selects the shape of a Delta.
type DeltaKind uint8

const (
	// DeltaReplace is a plain old/new swap, used for scalars, strings and
	// any transition that changes the kind of the value.
	DeltaReplace DeltaKind = iota

	// DeltaObject records per-field transitions of an object.
	DeltaObject

	// DeltaArray records a membership summary plus positional rewrites.
	DeltaArray
)

// String returns a human-readable name for the delta kind.
func (k DeltaKind) String() string {
	switch k {
	case DeltaReplace:
		return "replace"
	case DeltaObject:
		return "object"
	case DeltaArray:
		return "array"
	default:
		return fmt.Sprintf("deltakind(%d)", uint8(k))
	}
}

// FieldChange records an object field transition. For a field that did not
// exist before, Old is the nil value.
type FieldChange struct {
	Old Value `json:"old"`
	New Value `json:"new"`
}

// IndexChange records a positional rewrite inside an array. For an index
// beyond the end of the old array, Old is the nil value.
type IndexChange struct {
	Index int   `json:"index"`
	Old   Value `json:"old"`
	New   Value `json:"new"`
}

// Delta describes how one value became another. Only the fields belonging to
// the Kind variant are meaningful.
//
// Added/Removed are the membership summary of an array transition (elements
// that appear only on one side); Changed carries the positional rewrites and
// Len the length of the new array, which together make Apply exact.
type Delta struct {
	Kind DeltaKind `json:"kind"`

	// DeltaReplace
	Old Value `json:"old,omitempty"`
	New Value `json:"new,omitempty"`

	// DeltaObject
	Fields        map[string]FieldChange `json:"fields,omitempty"`
	RemovedFields []string               `json:"removed_fields,omitempty"`

	// DeltaArray
	Added   []Value       `json:"added,omitempty"`
	Removed []Value       `json:"removed,omitempty"`
	Changed []IndexChange `json:"changed,omitempty"`
	Len     int           `json:"len,omitempty"`
}

// --------------------------------------------------------------------------
// Computing Deltas
// --------------------------------------------------------------------------

// Compute returns the delta that transforms prev into next. A transition that
// changes the kind of the value is always a plain replacement.
func Compute(prev, next Value) Delta {
	if prev.Kind != next.Kind {
		return Delta{Kind: DeltaReplace, Old: prev, New: next}
	}

	switch next.Kind {
	case KindObject:
		return computeObjectDelta(prev, next)
	case KindArray:
		return computeArrayDelta(prev, next)
	default:
		return Delta{Kind: DeltaReplace, Old: prev, New: next}
	}
}

func computeObjectDelta(prev, next Value) Delta {
	fields := make(map[string]FieldChange)
	for k, nv := range next.Obj {
		pv, ok := prev.Obj[k]
		if !ok {
			fields[k] = FieldChange{Old: Nil(), New: nv}
		} else if !pv.Equal(nv) {
			fields[k] = FieldChange{Old: pv, New: nv}
		}
	}

	var removed []string
	for k := range prev.Obj {
		if _, ok := next.Obj[k]; !ok {
			removed = append(removed, k)
		}
	}
	// map iteration order is random, keep the encoding deterministic
	sort.Strings(removed)

	return Delta{Kind: DeltaObject, Fields: fields, RemovedFields: removed}
}

func computeArrayDelta(prev, next Value) Delta {
	var added, removed []Value
	for _, e := range next.Arr {
		if Index(prev.Arr, e) < 0 {
			added = append(added, e)
		}
	}
	for _, e := range prev.Arr {
		if Index(next.Arr, e) < 0 {
			removed = append(removed, e)
		}
	}

	var changed []IndexChange
	for i, nv := range next.Arr {
		old := Nil()
		if i < len(prev.Arr) {
			old = prev.Arr[i]
			if old.Equal(nv) {
				continue
			}
		}
		changed = append(changed, IndexChange{Index: i, Old: old, New: nv})
	}

	return Delta{
		Kind:    DeltaArray,
		Added:   added,
		Removed: removed,
		Changed: changed,
		Len:     len(next.Arr),
	}
}

// --------------------------------------------------------------------------
// Applying Deltas
// --------------------------------------------------------------------------

// Apply reconstructs the new value from the previous value plus the delta.
// For every pair of values, Apply(prev, Compute(prev, next)) equals next.
func Apply(prev Value, d Delta) (Value, error) {
	switch d.Kind {
	case DeltaReplace:
		return d.New, nil

	case DeltaObject:
		if prev.Kind != KindObject {
			return Nil(), fmt.Errorf("%w: object delta on %s", ErrDeltaMismatch, prev.Kind)
		}
		obj := make(map[string]Value, len(prev.Obj)+len(d.Fields))
		for k, e := range prev.Obj {
			obj[k] = e
		}
		for k, c := range d.Fields {
			obj[k] = c.New
		}
		for _, k := range d.RemovedFields {
			delete(obj, k)
		}
		return Object(obj), nil

	case DeltaArray:
		if prev.Kind != KindArray {
			return Nil(), fmt.Errorf("%w: array delta on %s", ErrDeltaMismatch, prev.Kind)
		}
		arr := make([]Value, d.Len)
		for i := range arr {
			if i < len(prev.Arr) {
				arr[i] = prev.Arr[i]
			} else {
				arr[i] = Nil()
			}
		}
		for _, c := range d.Changed {
			if c.Index < 0 || c.Index >= len(arr) {
				return Nil(), fmt.Errorf("%w: rewrite at index %d, length %d", ErrDeltaCorrupt, c.Index, d.Len)
			}
			arr[c.Index] = c.New
		}
		return Array(arr...), nil

	default:
		return Nil(), fmt.Errorf("%w: unknown delta kind %s", ErrDeltaCorrupt, d.Kind)
	}
}
