// Package textfmt implements the LVM2 text configuration format: a
// hand-written lexer, a recursive-descent parser into a semantic tree, and
// a serializer back to text. The same grammar is used for on-disk VG
// metadata and for melvin's system configuration file (see package config).
package textfmt

// Value is the sum type a TextMap entry can hold: Number, String,
// *List, or *TextMap.
type Value interface {
	isValue()
}

// Number is a bare signed integer literal.
type Number int64

func (Number) isValue() {}

// String is a double-quoted string literal, stored without its quotes.
type String string

func (String) isValue() {}

// Element is the sum type a List entry can hold: Number or String.
type Element interface {
	isElement()
}

func (Number) isElement() {}
func (String) isElement() {}

// List is an LVM2 list literal: `[a, b, c]`.
type List []Element

func (*List) isValue() {}

// entry is one key/value pair in a TextMap, kept in insertion order.
type entry struct {
	key   string
	value Value
}

// TextMap is an ordered key -> Value mapping. Key order in the source text
// is semantically irrelevant, but insertion order is preserved on
// serialization to minimize diff churn between successive commits.
type TextMap struct {
	entries []entry
	index   map[string]int
}

func (*TextMap) isValue() {}

// NewTextMap returns an empty, ready-to-use TextMap.
func NewTextMap() *TextMap {
	return &TextMap{index: map[string]int{}}
}

// Set assigns key to value, appending a new entry if key is not already
// present, or overwriting in place (preserving its original position) if
// it is.
func (m *TextMap) Set(key string, value Value) {
	if i, ok := m.index[key]; ok {
		m.entries[i].value = value
		return
	}

	m.index[key] = len(m.entries)
	m.entries = append(m.entries, entry{key: key, value: value})
}

// Get returns the value stored under key, and whether it was present.
func (m *TextMap) Get(key string) (Value, bool) {
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}

	return m.entries[i].value, true
}

// GetMap returns the TextMap stored under key, if key is present and holds
// a section.
func (m *TextMap) GetMap(key string) (*TextMap, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}

	sub, ok := v.(*TextMap)
	return sub, ok
}

// GetString returns the string stored under key, if key is present and
// holds a string.
func (m *TextMap) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}

	s, ok := v.(String)
	return string(s), ok
}

// GetNumber returns the number stored under key, if key is present and
// holds a number.
func (m *TextMap) GetNumber(key string) (int64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}

	n, ok := v.(Number)
	return int64(n), ok
}

// GetList returns the list stored under key, if key is present and holds
// a list.
func (m *TextMap) GetList(key string) (List, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}

	l, ok := v.(*List)
	if !ok {
		return nil, false
	}

	return *l, true
}

// GetStringList returns the value stored under key normalized to a list of
// strings: a bare string becomes a single-element list, a list of strings
// is returned as-is. This realizes the §4.5 "status may appear as either a
// single string or a list" normalization rule.
func (m *TextMap) GetStringList(key string) ([]string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}

	switch val := v.(type) {
	case String:
		return []string{string(val)}, true
	case *List:
		out := make([]string, 0, len(*val))
		for _, e := range *val {
			s, ok := e.(String)
			if !ok {
				return nil, false
			}

			out = append(out, string(s))
		}

		return out, true
	default:
		return nil, false
	}
}

// Keys returns the map's keys in insertion order.
func (m *TextMap) Keys() []string {
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.key
	}

	return keys
}

// Len returns the number of entries in the map.
func (m *TextMap) Len() int {
	return len(m.entries)
}

// Equal reports whether m and other hold the same keys, in the same order,
// with recursively equal values. Used by the lexer round-trip property test.
func (m *TextMap) Equal(other *TextMap) bool {
	if m == nil || other == nil {
		return m == other
	}

	if len(m.entries) != len(other.entries) {
		return false
	}

	for i, e := range m.entries {
		oe := other.entries[i]
		if e.key != oe.key || !valuesEqual(e.value, oe.value) {
			return false
		}
	}

	return true
}

func valuesEqual(a, b Value) bool {
	switch av := a.(type) {
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case *List:
		bv, ok := b.(*List)
		if !ok || len(*av) != len(*bv) {
			return false
		}

		for i := range *av {
			if !elementsEqual((*av)[i], (*bv)[i]) {
				return false
			}
		}

		return true
	case *TextMap:
		bv, ok := b.(*TextMap)
		return ok && av.Equal(bv)
	default:
		return false
	}
}

func elementsEqual(a, b Element) bool {
	switch av := a.(type) {
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	default:
		return false
	}
}
