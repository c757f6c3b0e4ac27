package ndn

import (
	"encoding/binary"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
)

// TLV type code points (spec §4.A). Codes not named in spec.md (the two
// Interest selector flags, application parameters, and the MetaInfo
// sub-fields) are assigned free values in the same single-byte space; an
// unknown type within a container is skipped (forward compatibility), so
// picking unused codes here cannot collide with a future revision that
// defines them differently on the wire.
const (
	tlvNack           = 0x03
	tlvInterest       = 0x05
	tlvData           = 0x06
	tlvName           = 0x07
	tlvComponent      = 0x08
	tlvNonce          = 0x0A
	tlvLifetime       = 0x0C
	tlvNackReason     = 0x0F
	tlvMetaInfo       = 0x14
	tlvContent        = 0x15
	tlvSignatureInfo  = 0x16
	tlvSignatureValue = 0x17

	tlvContentType    = 0x18 // MetaInfo sub-field
	tlvFreshnessMs    = 0x19 // MetaInfo sub-field
	tlvCanBePrefix    = 0x21 // Interest selector flag
	tlvMustBeFresh    = 0x22 // Interest selector flag
	tlvAppParameters  = 0x23
	tlvNackText       = 0x24
)

// maxTlvLength is the largest payload the 2-byte length form can address.
const maxTlvLength = 0xFFFF

// appendTLV appends a Type-Length-Value block to dst and returns the
// extended slice. Length uses the smallest of the 1- or 2-byte forms that
// fits the payload (spec §4.A): values up to 0xFC encode as a single byte;
// larger values (up to 0xFFFF) are prefixed with marker byte 0xFD followed
// by a big-endian uint16.
func appendTLV(dst []byte, typ byte, value []byte) []byte {
	dst = append(dst, typ)
	if len(value) <= 0xFC {
		dst = append(dst, byte(len(value)))
	} else {
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(value)))
		dst = append(dst, 0xFD, lenBuf[0], lenBuf[1])
	}
	return append(dst, value...)
}

// readTLV reads one Type-Length-Value block starting at pos, returning the
// type, the value slice (a view into buf), and the position immediately
// following the value. It accepts either the 1-byte or 2-byte length form
// regardless of whether the shorter form would have sufficed, per spec
// §4.A ("decoders must accept either").
func readTLV(buf []byte, pos int) (typ byte, value []byte, next int, err error) {
	if pos >= len(buf) {
		return 0, nil, 0, uerrors.NewParseError("truncated TLV: missing type byte", nil)
	}
	typ = buf[pos]
	pos++

	if pos >= len(buf) {
		return 0, nil, 0, uerrors.NewParseError("truncated TLV: missing length byte", nil)
	}
	var length int
	if buf[pos] == 0xFD {
		if pos+2 >= len(buf) {
			return 0, nil, 0, uerrors.NewParseError("truncated TLV: missing 2-byte length", nil)
		}
		length = int(binary.BigEndian.Uint16(buf[pos+1 : pos+3]))
		pos += 3
	} else {
		length = int(buf[pos])
		pos++
	}

	if length > len(buf)-pos {
		return 0, nil, 0, uerrors.NewParseError("TLV length overruns buffer", nil)
	}
	value = buf[pos : pos+length]
	next = pos + length
	return typ, value, next, nil
}

// iterTLV walks every top-level TLV block in buf, invoking fn(typ, value)
// for each. It stops and returns fn's error if fn returns non-nil.
func iterTLV(buf []byte, fn func(typ byte, value []byte) error) error {
	pos := 0
	for pos < len(buf) {
		typ, value, next, err := readTLV(buf, pos)
		if err != nil {
			return err
		}
		if err := fn(typ, value); err != nil {
			return err
		}
		pos = next
	}
	return nil
}
