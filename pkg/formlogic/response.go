package formlogic

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ParseResponse reads one submitted response: a JSON object of field id to raw value.
func ParseResponse(data []byte) (Values, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrInvalidInput)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: response must be a JSON object", ErrInvalidInput)
	}

	values := make(Values)
	root.ForEach(func(key, val gjson.Result) bool {
		values[key.String()] = valueFromResult(val)
		return true
	})
	return values, nil
}

// valueFromResult maps a gjson result onto the value union.
func valueFromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return EmptyValue()
	case gjson.String:
		return StringValue(r.Str)
	case gjson.Number:
		return NumberValue(r.Num)
	case gjson.True:
		return BoolValue(true)
	case gjson.False:
		return BoolValue(false)
	case gjson.JSON:
		if r.IsArray() {
			items := make([]string, 0)
			r.ForEach(func(_, item gjson.Result) bool {
				switch item.Type {
				case gjson.Null:
					items = append(items, "")
				case gjson.String:
					items = append(items, item.Str)
				case gjson.Number:
					text, _ := NumberValue(item.Num).Text()
					items = append(items, text)
				default:
					items = append(items, item.Raw)
				}
				return true
			})
			return ListValue(items...)
		}
		return StringValue(r.Raw)
	default:
		return EmptyValue()
	}
}
