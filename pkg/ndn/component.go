// Package ndn implements the forwarder's packet data model: hierarchical
// Names, Interest/Data/Nack packets, and their TLV wire codec (spec §3, §4.A).
package ndn

import (
	"bytes"
	"fmt"
	"strings"
)

// Component is a single opaque byte-string segment of a Name. It is
// immutable once constructed.
type Component struct {
	value []byte
}

// NewComponent wraps raw bytes as a Component. The caller must not mutate
// value after the call.
func NewComponent(value []byte) Component {
	cp := make([]byte, len(value))
	copy(cp, value)
	return Component{value: cp}
}

// ComponentFromString builds a Component from a UTF-8 string.
func ComponentFromString(s string) Component {
	return NewComponent([]byte(s))
}

// Bytes returns the component's raw value. The caller must not mutate it.
func (c Component) Bytes() []byte { return c.value }

// Len returns the number of bytes in the component's value.
func (c Component) Len() int { return len(c.value) }

// Equal reports whether two components have identical bytes.
func (c Component) Equal(o Component) bool { return bytes.Equal(c.value, o.value) }

// Compare orders components lexicographically by byte value, shorter
// components sorting before longer ones that share a common prefix.
func (c Component) Compare(o Component) int { return bytes.Compare(c.value, o.value) }

// String renders the component as text. A component containing '/', '%'
// or a control byte is percent-escaped byte by byte (unreserved ASCII is
// kept as is); otherwise its bytes are returned as text, with any invalid
// UTF-8 sequence replaced by the Unicode replacement character. Decode
// accepts such bytes unchanged; only the rendering substitutes.
func (c Component) String() string {
	s := strings.ToValidUTF8(string(c.value), "�")
	if !isPrintableURISafe(s) {
		return escapeComponent(c.value)
	}
	return s
}

func isPrintableURISafe(s string) bool {
	for _, r := range s {
		if r == '/' || r == '%' || r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

func escapeComponent(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, "%%%02X", c)
		}
	}
	return sb.String()
}
