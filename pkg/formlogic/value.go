package formlogic

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Kind discriminates the shapes a submitted value can take.
type Kind int

const (
	KindEmpty Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindList:
		return "list"
	default:
		return "empty"
	}
}

// Value is one submitted field value.
// The zero Value is empty (absent or null).
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []string
}

func EmptyValue() Value { return Value{} }

func StringValue(s string) Value { return Value{kind: KindString, str: s} }

func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }

func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

func ListValue(items ...string) Value {
	list := make([]string, len(items))
	copy(list, items)
	return Value{kind: KindList, list: list}
}

// ValueOf converts a decoded JSON or YAML value into a Value.
// Objects have no place in the union and are kept as their JSON text.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{}
	case Value:
		return x
	case string:
		return StringValue(x)
	case bool:
		return BoolValue(x)
	case float64:
		return NumberValue(x)
	case float32:
		return NumberValue(float64(x))
	case int:
		return NumberValue(float64(x))
	case int8:
		return NumberValue(float64(x))
	case int16:
		return NumberValue(float64(x))
	case int32:
		return NumberValue(float64(x))
	case int64:
		return NumberValue(float64(x))
	case uint:
		return NumberValue(float64(x))
	case uint8:
		return NumberValue(float64(x))
	case uint16:
		return NumberValue(float64(x))
	case uint32:
		return NumberValue(float64(x))
	case uint64:
		return NumberValue(float64(x))
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return NumberValue(f)
		}
		return StringValue(x.String())
	case []string:
		return ListValue(x...)
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			items = append(items, elementText(item))
		}
		return Value{kind: KindList, list: items}
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return StringValue(fmt.Sprintf("%v", x))
		}
		return StringValue(string(raw))
	}
}

// elementText renders a list element as the string stored in a List value.
func elementText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		if t, ok := ValueOf(x).Text(); ok {
			return t
		}
		if b, ok := x.(bool); ok {
			return strconv.FormatBool(b)
		}
		return fmt.Sprintf("%v", x)
	}
}

func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether the value is absent, null, "" or an empty list.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindEmpty:
		return true
	case KindString:
		return v.str == ""
	case KindList:
		return len(v.list) == 0
	default:
		return false
	}
}

// Number coerces the value to a float. Numeric strings are accepted.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Text coerces the value to a string. Numbers use their shortest form.
func (v Value) Text() (string, bool) {
	switch v.kind {
	case KindString:
		return v.str, true
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64), true
	default:
		return "", false
	}
}

// Bool returns the payload of a boolean value.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// List returns a copy of the items of a list value.
func (v Value) List() ([]string, bool) {
	if v.kind != KindList {
		return nil, false
	}
	out := make([]string, len(v.list))
	copy(out, v.list)
	return out, true
}

// Equal compares two values. Numeric-coercible pairs compare as numbers.
func (v Value) Equal(o Value) bool {
	if v.IsEmpty() && o.IsEmpty() {
		return true
	}
	if a, ok := v.Number(); ok {
		if b, ok := o.Number(); ok {
			return a == b
		}
	}
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
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	}
	return true
}

// Interface returns the value as a plain Go value (nil, string, float64, bool, []any).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, s := range v.list {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindEmpty:
		return "<empty>"
	case KindList:
		return "[" + strings.Join(v.list, ", ") + "]"
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		t, _ := v.Text()
		return t
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}

// Values maps field identifiers to submitted values for one response.
type Values map[string]Value

// Get returns the value for id, or an empty value when absent.
func (vs Values) Get(id string) Value {
	if vs == nil {
		return Value{}
	}
	return vs[id]
}

// Clone returns a shallow copy safe to modify.
func (vs Values) Clone() Values {
	out := make(Values, len(vs))
	for k, v := range vs {
		out[k] = v
	}
	return out
}

// ValuesOf converts a decoded JSON object into Values.
func ValuesOf(m map[string]any) Values {
	out := make(Values, len(m))
	for k, v := range m {
		out[k] = ValueOf(v)
	}
	return out
}
