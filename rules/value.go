package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind identifies which scalar a Value holds.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindString
	KindNumber
	KindBool
)

// String returns the kind name used in error messages.
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	default:
		return "invalid"
	}
}

// Value is the operand of a Condition: a string, a number or a boolean.
// The zero Value is invalid and never equals anything.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

// StringValue returns a string Value.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// NumberValue returns a numeric Value.
func NumberValue(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Kind reports the kind of v.
func (v Value) Kind() ValueKind { return v.kind }

// AsString returns the string held by v, if any.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the number held by v, if any.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsBool returns the boolean held by v, if any.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Equal compares two values within their own kind. Values of different kinds
// are never equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "<invalid>"
	}
}

// MarshalJSON encodes v as a bare JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return nil, fmt.Errorf("cannot encode invalid condition value")
	}
}

// UnmarshalJSON accepts a JSON string, number or boolean.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch x := raw.(type) {
	case string:
		*v = StringValue(x)
	case bool:
		*v = BoolValue(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return fmt.Errorf("invalid number %s: %w", x, err)
		}
		*v = NumberValue(n)
	case nil:
		return fmt.Errorf("condition value must be a string, number or boolean, got null")
	default:
		return fmt.Errorf("condition value must be a string, number or boolean, got %T", raw)
	}
	return nil
}
