package value

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// --------------------------------------------------------------------------
// Kind and DataType
// --------------------------------------------------------------------------

// Kind identifies the variant stored in a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns a human-readable name for the kind (used in logs and errors).
func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// DataType is the coarse type class used by merge rules and conflict
// resolution. Nil, booleans and numbers all collapse into TypeScalar.
type DataType string

const (
	TypeScalar DataType = "scalar"
	TypeString DataType = "string"
	TypeArray  DataType = "array"
	TypeObject DataType = "object"
)

// --------------------------------------------------------------------------
// Value
// --------------------------------------------------------------------------

// Value is a tagged representation of a JSON-like payload. Exactly one of the
// variant fields is meaningful, selected by Kind. The zero Value is the nil
// value.
//
// Values are treated as immutable: the store, bus and resolver never modify a
// Value they were handed and callers must not modify a Value they got back.
// Use Clone for a private mutable copy.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Str  string
	Arr  []Value
	Obj  map[string]Value
}

// Nil returns the nil value.
func Nil() Value {
	return Value{Kind: KindNil}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// Number returns a numeric value.
func Number(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

// Int returns a numeric value from an integer.
func Int(n int64) Value {
	return Value{Kind: KindNumber, Num: float64(n)}
}

// String returns a string value.
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Array returns an array value holding the given elements.
// The slice is used directly and must not be modified afterwards.
func Array(elems ...Value) Value {
	return Value{Kind: KindArray, Arr: elems}
}

// Object returns an object value holding the given fields.
// The map is used directly and must not be modified afterwards.
func Object(fields map[string]Value) Value {
	return Value{Kind: KindObject, Obj: fields}
}

// From converts a native Go value (as produced by encoding/json) into a Value.
// Supported inputs are nil, bool, all integer and float types, json.Number,
// string, []any, map[string]any and Value itself.
func From(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Nil(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Nil(), err
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case []any:
		arr := make([]Value, len(t))
		for i, e := range t {
			v, err := From(e)
			if err != nil {
				return Nil(), err
			}
			arr[i] = v
		}
		return Array(arr...), nil
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := From(e)
			if err != nil {
				return Nil(), err
			}
			obj[k] = v
		}
		return Object(obj), nil
	default:
		return Nil(), fmt.Errorf("value: cannot represent %T", x)
	}
}

// DataType returns the coarse type class of the value.
func (v Value) DataType() DataType {
	switch v.Kind {
	case KindString:
		return TypeString
	case KindArray:
		return TypeArray
	case KindObject:
		return TypeObject
	default:
		return TypeScalar
	}
}

// Equal reports whether two values are structurally equal. Arrays compare
// element-wise, objects compare field-wise, numbers compare by ==.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNil:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindNumber:
		return v.Num == o.Num
	case KindString:
		return v.Str == o.Str
	case KindArray:
		if len(v.Arr) != len(o.Arr) {
			return false
		}
		for i := range v.Arr {
			if !v.Arr[i].Equal(o.Arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.Obj) != len(o.Obj) {
			return false
		}
		for k, e := range v.Obj {
			oe, ok := o.Obj[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	switch v.Kind {
	case KindArray:
		arr := make([]Value, len(v.Arr))
		for i, e := range v.Arr {
			arr[i] = e.Clone()
		}
		return Value{Kind: KindArray, Arr: arr}
	case KindObject:
		obj := make(map[string]Value, len(v.Obj))
		for k, e := range v.Obj {
			obj[k] = e.Clone()
		}
		return Value{Kind: KindObject, Obj: obj}
	default:
		// scalar variants carry no references
		return v
	}
}

// Index returns the position of the first element in list that is equal to
// target, or -1 if no element matches.
func Index(list []Value, target Value) int {
	for i, e := range list {
		if e.Equal(target) {
			return i
		}
	}
	return -1
}

// --------------------------------------------------------------------------
// JSON Encoding
// --------------------------------------------------------------------------

// MarshalJSON encodes the value as its natural JSON form (null, true, 42,
// "text", [...], {...}). Object fields are emitted in sorted key order so the
// encoding is deterministic.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNil:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindString:
		return json.Marshal(v.Str)
	case KindArray:
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range v.Arr {
			if i > 0 {
				b.WriteByte(',')
			}
			enc, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			b.Write(enc)
		}
		b.WriteByte(']')
		return []byte(b.String()), nil
	case KindObject:
		keys := make([]string, 0, len(v.Obj))
		for k := range v.Obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			name, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			b.Write(name)
			b.WriteByte(':')
			enc, err := v.Obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			b.Write(enc)
		}
		b.WriteByte('}')
		return []byte(b.String()), nil
	default:
		return nil, fmt.Errorf("value: cannot marshal %s", v.Kind)
	}
}

// UnmarshalJSON decodes any JSON value, inferring its kind.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := From(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// String returns the JSON encoding of the value for logging and debugging.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid value: %v>", err)
	}
	return string(b)
}
