// Package literal turns typed replacement values into SQL literal text that
// is safe to splice into a MySQL statement, and back again for display.
package literal

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	berrors "github.com/querysafe/querysafe/errors"
)

// Kind enumerates the closed set of value kinds a replacement may have.
type Kind int

const (
	Null Kind = iota
	Bool
	Int
	Float
	String
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is one replacement value. The zero Value is a Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

func NullValue() Value           { return Value{kind: Null} }
func BoolValue(b bool) Value     { return Value{kind: Bool, b: b} }
func IntValue(i int64) Value     { return Value{kind: Int, i: i} }
func FloatValue(f float64) Value { return Value{kind: Float, f: f} }
func StringValue(s string) Value { return Value{kind: String, s: s} }

// Kind reports the kind of v.
func (v Value) Kind() Kind {
	return v.kind
}

// Interface returns v as a plain Go value: nil, bool, int64, float64 or
// string.
func (v Value) Interface() any {
	switch v.kind {
	case Bool:
		return v.b
	case Int:
		return v.i
	case Float:
		return v.f
	case String:
		return v.s
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case Null:
		return "NULL"
	case String:
		return strconv.Quote(v.s)
	default:
		return fmt.Sprint(v.Interface())
	}
}

// Of converts a Go value into a Value. Only nil, bool, the integer types,
// float32, float64, string and json.Number are accepted; everything else is
// an Encoding error rather than being coerced.
func Of(x any) (Value, error) {
	switch x := x.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return x, nil
	case bool:
		return BoolValue(x), nil
	case int:
		return IntValue(int64(x)), nil
	case int8:
		return IntValue(int64(x)), nil
	case int16:
		return IntValue(int64(x)), nil
	case int32:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case uint:
		return fromUint(uint64(x))
	case uint8:
		return IntValue(int64(x)), nil
	case uint16:
		return IntValue(int64(x)), nil
	case uint32:
		return IntValue(int64(x)), nil
	case uint64:
		return fromUint(x)
	case float32:
		return FloatValue(float64(x)), nil
	case float64:
		return FloatValue(x), nil
	case string:
		return StringValue(x), nil
	case json.Number:
		i, err := x.Int64()
		if err == nil {
			return IntValue(i), nil
		}
		if !strings.ContainsAny(string(x), ".eE") {
			// Integer text that does not fit an int64 must not be rounded.
			return Value{}, berrors.EncodingError("integer json.Number of length %d overflows a signed 64-bit integer", len(x))
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, berrors.EncodingError("unparseable json.Number of length %d", len(x))
		}
		return FloatValue(f), nil
	default:
		return Value{}, berrors.EncodingError("unsupported value type %T", x)
	}
}

// Values converts each element of xs with Of. The error names the offending
// index.
func Values(xs ...any) ([]Value, error) {
	vals := make([]Value, len(xs))
	for i, x := range xs {
		v, err := Of(x)
		if err != nil {
			return nil, fmt.Errorf("replacement %d: %w", i, err)
		}
		vals[i] = v
	}
	return vals, nil
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, berrors.EncodingError("unsigned value %d overflows a signed 64-bit integer", u)
	}
	return IntValue(int64(u)), nil
}
