package ndn

import (
	"crypto/sha256"
	"strings"
)

// Name is an ordered, immutable sequence of opaque Components. Equality is
// component-wise; ordering is component-wise lexicographic. The canonical
// textual form is computed once and cached (spec §3).
type Name struct {
	components []Component
	text       string
}

// NewName builds a Name from an ordered slice of components. The slice is
// copied; the Name is immutable thereafter.
func NewName(components ...Component) Name {
	cp := make([]Component, len(components))
	copy(cp, components)
	n := Name{components: cp}
	n.text = renderName(cp)
	return n
}

// ParseName parses a "/"-joined textual Name. Percent-escaping is not
// unescaped on parse (components are taken as literal UTF-8 text between
// slashes); this matches the wire behaviour of encoding raw component
// bytes directly.
func ParseName(uri string) Name {
	parts := strings.Split(strings.Trim(uri, "/"), "/")
	comps := make([]Component, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		comps = append(comps, ComponentFromString(p))
	}
	return NewName(comps...)
}

func renderName(comps []Component) string {
	if len(comps) == 0 {
		return "/"
	}
	var sb strings.Builder
	for _, c := range comps {
		sb.WriteByte('/')
		sb.WriteString(c.String())
	}
	return sb.String()
}

// String returns the cached canonical textual form.
func (n Name) String() string { return n.text }

// Len returns the number of components.
func (n Name) Len() int { return len(n.components) }

// At returns the i'th component.
func (n Name) At(i int) Component { return n.components[i] }

// Components returns the underlying component slice. Callers must not
// mutate it.
func (n Name) Components() []Component { return n.components }

// Append returns a new Name with c appended.
func (n Name) Append(c Component) Name {
	out := make([]Component, len(n.components)+1)
	copy(out, n.components)
	out[len(n.components)] = c
	return NewName(out...)
}

// Prefix returns the first k components as a new Name. Panics if k is out
// of range, mirroring slice semantics.
func (n Name) Prefix(k int) Name {
	return NewName(n.components[:k]...)
}

// Equal reports whether two names have identical components.
func (n Name) Equal(o Name) bool {
	if len(n.components) != len(o.components) {
		return false
	}
	for i := range n.components {
		if !n.components[i].Equal(o.components[i]) {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether n is a prefix of o: n.Len() <= o.Len() and
// every component of n equals the corresponding component of o.
func (n Name) IsPrefixOf(o Name) bool {
	if n.Len() > o.Len() {
		return false
	}
	for i := range n.components {
		if !n.components[i].Equal(o.components[i]) {
			return false
		}
	}
	return true
}

// Compare orders names component-wise lexicographically; a name that is a
// strict prefix of another sorts before it.
func (n Name) Compare(o Name) int {
	for i := 0; i < n.Len() && i < o.Len(); i++ {
		if c := n.components[i].Compare(o.components[i]); c != 0 {
			return c
		}
	}
	switch {
	case n.Len() < o.Len():
		return -1
	case n.Len() > o.Len():
		return 1
	default:
		return 0
	}
}

// Digest returns a SHA-256 digest over the name's encoded wire bytes, a
// cheap stable hash key for maps where component-wise comparison would be
// too costly (SPEC_FULL §3 supplement).
func (n Name) Digest() [32]byte {
	return sha256.Sum256(encodeNameValue(n))
}
