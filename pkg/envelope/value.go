package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which arm of the Value union is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Value is an explicit tagged union over arbitrary JSON: null, bool, int,
// float, string, array of Value and object of string to Value.
//
// The decode arm order is fixed and part of the contract: bool before int
// before float before string, array before object. Numeric literals with no
// fraction or exponent that fit in an int64 decode as int; every other
// number decodes as float. The distinction is observable (`1` is an int
// while `1.0` is a float) and is preserved on re-encode, so a decoded
// Value always round-trips to an equal Value.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

// Null returns the null Value. It is also the zero Value.
func Null() Value {
	return Value{kind: KindNull}
}

// Bool returns a boolean Value.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Int returns an integer Value.
func Int(i int64) Value {
	return Value{kind: KindInt, i: i}
}

// Float returns a floating-point Value.
func Float(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

// String returns a string Value.
func String(s string) Value {
	return Value{kind: KindString, s: s}
}

// Array returns an array Value holding the given items.
func Array(items ...Value) Value {
	return Value{kind: KindArray, arr: append([]Value{}, items...)}
}

// Object returns an object Value holding a copy of the given fields.
func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v
	}
	return Value{kind: KindObject, obj: obj}
}

// Kind reports which arm of the union is populated.
func (v Value) Kind() Kind {
	return v.kind
}

// AsBool returns the boolean arm. It is only meaningful when Kind is KindBool.
func (v Value) AsBool() bool { return v.b }

// AsInt returns the integer arm. It is only meaningful when Kind is KindInt.
func (v Value) AsInt() int64 { return v.i }

// AsFloat returns the float arm. It is only meaningful when Kind is KindFloat.
func (v Value) AsFloat() float64 { return v.f }

// AsString returns the string arm. It is only meaningful when Kind is KindString.
func (v Value) AsString() string { return v.s }

// Items returns the array arm. It is only meaningful when Kind is KindArray.
func (v Value) Items() []Value { return v.arr }

// Fields returns the object arm. It is only meaningful when Kind is KindObject.
func (v Value) Fields() map[string]Value { return v.obj }

// UnmarshalJSON decodes any JSON value into the union, following the
// documented arm order.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	parsed, err := fromRaw(raw)
	if err != nil {
		return err
	}

	*v = parsed
	return nil
}

// fromRaw converts a json-decoded any (with UseNumber) into a Value.
func fromRaw(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil

	case bool:
		return Bool(t), nil

	case json.Number:
		// Int before float: a literal with no fraction or exponent that
		// fits in int64 stays an integer.
		if !strings.ContainsAny(t.String(), ".eE") {
			if i, err := t.Int64(); err == nil {
				return Int(i), nil
			}
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("parsing number %q: %w", t.String(), err)
		}
		return Float(f), nil

	case string:
		return String(t), nil

	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			parsed, err := fromRaw(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, parsed)
		}
		return Value{kind: KindArray, arr: items}, nil

	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			parsed, err := fromRaw(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = parsed
		}
		return Value{kind: KindObject, obj: fields}, nil
	}

	return Value{}, fmt.Errorf("unsupported JSON value of type %T", raw)
}

// MarshalJSON encodes the union back to JSON. Whole-number floats are
// written with a trailing ".0" so the int/float distinction survives a
// decode of the encoded form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil

	case KindBool:
		return json.Marshal(v.b)

	case KindInt:
		return strconv.AppendInt(nil, v.i, 10), nil

	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("cannot encode %v as JSON", v.f)
		}
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return []byte(s), nil

	case KindString:
		return json.Marshal(v.s)

	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)

	case KindObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	}

	return nil, fmt.Errorf("cannot encode value of kind %d", v.kind)
}
