// Package fragment implements the Data fragmentation/reassembly layer and
// the fragmenter-local MTU size-history adaptation (spec §4.B).
package fragment

import (
	"encoding/binary"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
)

// HeaderSize is the fixed on-wire size of a FragmentHeader in bytes
// (spec §3).
const HeaderSize = 8

// Magic identifies a fragment header on the wire (spec §3).
const Magic uint16 = 0x4644

// finalBit marks the MSB of the packed fragment-id/flags word as the
// is_final flag, so the 1-bit-flag + fragment-id pair the spec lists as
// separate fields fit into the same 16-bit wire slot. This is what keeps
// the header at exactly the spec-mandated 8 bytes (magic + packed word +
// sequence + total_fragments = 2+2+2+2); since is_final is fully
// redundant with sequence == total_fragments-1 (spec §3 invariant), no
// information is lost by not giving it a dedicated byte, and the 7
// "reserved" bits spec.md lists alongside it carry no semantics here.
const finalBit = uint16(0x8000)
const fragmentIDMask = uint16(0x7FFF)

// Header is the fixed 8-byte prefix carried by every fragment (spec §3).
type Header struct {
	IsFinal        bool
	FragmentID     uint16 // effective range 0..0x7FFF, wraps on overflow
	Sequence       uint16
	TotalFragments uint16
}

// Encode writes the header to its fixed 8-byte wire form.
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint16(buf[0:2], Magic)

	packed := h.FragmentID & fragmentIDMask
	if h.IsFinal {
		packed |= finalBit
	}
	binary.BigEndian.PutUint16(buf[2:4], packed)
	binary.BigEndian.PutUint16(buf[4:6], h.Sequence)
	binary.BigEndian.PutUint16(buf[6:8], h.TotalFragments)
	return buf
}

// DecodeHeader parses an 8-byte FragmentHeader from the front of buf. It
// fails with a ParseError if buf is shorter than HeaderSize or the magic
// does not match (spec §4.B: "a fragment with magic != 0x4644 fails as
// ParseError; the enclosing stream is closed").
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, uerrors.NewParseError("fragment header truncated", nil)
	}
	magic := binary.BigEndian.Uint16(buf[0:2])
	if magic != Magic {
		return Header{}, uerrors.NewParseError("bad fragment magic", nil)
	}
	packed := binary.BigEndian.Uint16(buf[2:4])
	return Header{
		IsFinal:        packed&finalBit != 0,
		FragmentID:     packed & fragmentIDMask,
		Sequence:       binary.BigEndian.Uint16(buf[4:6]),
		TotalFragments: binary.BigEndian.Uint16(buf[6:8]),
	}, nil
}
