package model

import (
	"fmt"
	"strings"
	"time"
)

// ValueKind tags the variant carried by a Value.
type ValueKind string

const (
	ValueKindNull   ValueKind = "null"
	ValueKindBool   ValueKind = "bool"
	ValueKindNumber ValueKind = "number"
	ValueKindString ValueKind = "string"
	ValueKindStruct ValueKind = "struct"
	ValueKindList   ValueKind = "list"
)

// dateTimePrefix and dateTimeOffsetPrefix tag string values that round-trip
// to a typed date. dt: carries a wall-clock time.Time (RFC3339, no offset
// semantics beyond what RFC3339 itself encodes); dto: carries a time.Time
// with an explicit zone offset. Both are stored as RFC3339 text; the
// prefix alone distinguishes which typed field the decoder should
// attempt to populate first.
const (
	dateTimePrefix       = "dt:"
	dateTimeOffsetPrefix = "dto:"
)

// Value is a typed, recursively-nestable value used for failure-detail
// properties and similar carry-through maps.
type Value struct {
	Kind   ValueKind
	Bool   bool
	Number float64
	Str    string
	Struct map[string]Value
	List   []Value
}

// NullValue returns the null variant.
func NullValue() Value { return Value{Kind: ValueKindNull} }

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{Kind: ValueKindBool, Bool: b} }

// NumberValue wraps a float64.
func NumberValue(n float64) Value { return Value{Kind: ValueKindNumber, Number: n} }

// StringValue wraps a plain string (not a date).
func StringValue(s string) Value { return Value{Kind: ValueKindString, Str: s} }

// StructValue wraps a string-keyed map of values.
func StructValue(m map[string]Value) Value { return Value{Kind: ValueKindStruct, Struct: m} }

// ListValue wraps an ordered list of values.
func ListValue(l []Value) Value { return Value{Kind: ValueKindList, List: l} }

// DateTimeValue encodes a wall-clock time as a dt:-prefixed string value.
func DateTimeValue(t time.Time) Value {
	return Value{Kind: ValueKindString, Str: dateTimePrefix + t.Format(time.RFC3339Nano)}
}

// DateTimeOffsetValue encodes a zoned time as a dto:-prefixed string value.
func DateTimeOffsetValue(t time.Time) Value {
	return Value{Kind: ValueKindString, Str: dateTimeOffsetPrefix + t.Format(time.RFC3339Nano)}
}

// AsTime attempts to decode a dt:/dto:-prefixed string value back into a
// time.Time. It returns ok=false (falling back to plain string semantics)
// if the value isn't a string, carries no recognized prefix, or the
// timestamp fails to parse.
func (v Value) AsTime() (t time.Time, offset bool, ok bool) {
	if v.Kind != ValueKindString {
		return time.Time{}, false, false
	}
	switch {
	case strings.HasPrefix(v.Str, dateTimeOffsetPrefix):
		parsed, err := time.Parse(time.RFC3339Nano, v.Str[len(dateTimeOffsetPrefix):])
		if err != nil {
			return time.Time{}, false, false
		}
		return parsed, true, true
	case strings.HasPrefix(v.Str, dateTimePrefix):
		parsed, err := time.Parse(time.RFC3339Nano, v.Str[len(dateTimePrefix):])
		if err != nil {
			return time.Time{}, false, false
		}
		return parsed, false, true
	default:
		return time.Time{}, false, false
	}
}

// FromRuntime coerces an arbitrary Go runtime value into a Value. Unknown
// runtime types fall back to their string form.
func FromRuntime(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return NullValue()
	case Value:
		return x
	case bool:
		return BoolValue(x)
	case string:
		return StringValue(x)
	case time.Time:
		return DateTimeValue(x)
	case float64:
		return NumberValue(x)
	case float32:
		return NumberValue(float64(x))
	case int:
		return NumberValue(float64(x))
	case int32:
		return NumberValue(float64(x))
	case int64:
		return NumberValue(float64(x))
	case map[string]interface{}:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			m[k] = FromRuntime(e)
		}
		return StructValue(m)
	case []interface{}:
		l := make([]Value, len(x))
		for i, e := range x {
			l[i] = FromRuntime(e)
		}
		return ListValue(l)
	default:
		return StringValue(fmt.Sprintf("%v", x))
	}
}
