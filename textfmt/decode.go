package textfmt

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode binds a parsed TextMap into dst (a pointer to a struct) with
// mapstructure, reading `lvm` struct tags, the same way the teacher binds CLI properties in
// lxc/utils_properties.go, adapted from string-typed CLI flags to the
// Number/String/List/TextMap shape produced by this package's parser.
func Decode(m *TextMap, dst any) error {
	plain := toPlain(m)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		TagName:          "lvm",
	})
	if err != nil {
		return fmt.Errorf("textfmt.Decode: building decoder: %w", err)
	}

	if err := decoder.Decode(plain); err != nil {
		return fmt.Errorf("textfmt.Decode: %w", err)
	}

	return nil
}

// toPlain converts a TextMap tree into nested map[string]any / []any /
// string / int64 values that mapstructure can walk.
func toPlain(m *TextMap) map[string]any {
	out := make(map[string]any, m.Len())
	for _, key := range m.Keys() {
		v, _ := m.Get(key)
		out[key] = toPlainValue(v)
	}

	return out
}

func toPlainValue(v Value) any {
	switch val := v.(type) {
	case Number:
		return int64(val)
	case String:
		return string(val)
	case *List:
		out := make([]any, len(*val))
		for i, e := range *val {
			switch ev := e.(type) {
			case Number:
				out[i] = int64(ev)
			case String:
				out[i] = string(ev)
			}
		}

		return out
	case *TextMap:
		return toPlain(val)
	default:
		return nil
	}
}

// Encode builds the TextMap equivalent of src, a nested map[string]any of
// int/int64, string, []any and map[string]any values (other values are
// dropped). It takes no struct and reads no tags; entry order follows Go
// map iteration. It is the inverse used when writing the system
// configuration file back out.
func Encode(src map[string]any) *TextMap {
	m := NewTextMap()
	for key, v := range src {
		val := fromPlainValue(v)
		if val != nil {
			m.Set(key, val)
		}
	}

	return m
}

func fromPlainValue(v any) Value {
	switch val := v.(type) {
	case int64:
		return Number(val)
	case int:
		return Number(int64(val))
	case string:
		return String(val)
	case []any:
		list := make(List, 0, len(val))
		for _, e := range val {
			switch ev := e.(type) {
			case string:
				list = append(list, String(ev))
			case int64:
				list = append(list, Number(ev))
			case int:
				list = append(list, Number(int64(ev)))
			}
		}

		return &list
	case map[string]any:
		return Encode(val)
	default:
		return nil
	}
}
