package textfmt

import (
	"fmt"
	"strconv"
	"strings"
)

// Serialize renders m back to LVM2 text-format bytes: two-space indentation
// per nesting level, `key = value\n` assignments, single-line lists, and
// `key {\n ... }\n` sections. Strings are written double-quoted verbatim
// (the grammar needs no escaping, per spec.md §4.2).
func Serialize(m *TextMap) []byte {
	var b strings.Builder
	writeMap(&b, m, 0)
	return []byte(b.String())
}

func writeIndent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

func writeMap(b *strings.Builder, m *TextMap, depth int) {
	for _, key := range m.Keys() {
		v, _ := m.Get(key)
		writeIndent(b, depth)

		switch val := v.(type) {
		case *TextMap:
			fmt.Fprintf(b, "%s {\n", key)
			writeMap(b, val, depth+1)
			writeIndent(b, depth)
			b.WriteString("}\n")
		default:
			fmt.Fprintf(b, "%s = ", key)
			writeValue(b, v)
			b.WriteString("\n")
		}
	}
}

func writeValue(b *strings.Builder, v Value) {
	switch val := v.(type) {
	case Number:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case String:
		b.WriteByte('"')
		b.WriteString(string(val))
		b.WriteByte('"')
	case *List:
		b.WriteByte('[')
		for i, e := range *val {
			if i > 0 {
				b.WriteString(", ")
			}

			writeElement(b, e)
		}

		b.WriteByte(']')
	}
}

func writeElement(b *strings.Builder, e Element) {
	switch val := e.(type) {
	case Number:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case String:
		b.WriteByte('"')
		b.WriteString(string(val))
		b.WriteByte('"')
	}
}
