package ndn

import (
	"encoding/binary"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
)

func encodeNameValue(n Name) []byte {
	var buf []byte
	for _, c := range n.Components() {
		buf = appendTLV(buf, tlvComponent, c.Bytes())
	}
	return buf
}

func decodeNameValue(value []byte) (Name, error) {
	var comps []Component
	err := iterTLV(value, func(typ byte, v []byte) error {
		if typ != tlvComponent {
			return nil // unknown/skip, forward compatible
		}
		comps = append(comps, NewComponent(v))
		return nil
	})
	if err != nil {
		return Name{}, err
	}
	return NewName(comps...), nil
}

// EncodeName encodes a bare Name as a top-level Name TLV.
func EncodeName(n Name) []byte {
	return appendTLV(nil, tlvName, encodeNameValue(n))
}

// DecodeName decodes a bare top-level Name TLV.
func DecodeName(buf []byte) (Name, error) {
	typ, value, _, err := readTLV(buf, 0)
	if err != nil {
		return Name{}, err
	}
	if typ != tlvName {
		return Name{}, uerrors.NewParseError("expected Name TLV", nil)
	}
	return decodeNameValue(value)
}

// EncodeInterest encodes i per spec §4.A: a Name, Nonce, Lifetime, and
// optionally CanBePrefix/MustBeFresh flags and ApplicationParameters.
func EncodeInterest(i *Interest) []byte {
	var body []byte
	body = appendTLV(body, tlvName, encodeNameValue(i.Name))

	var nonceBuf [4]byte
	binary.BigEndian.PutUint32(nonceBuf[:], i.Nonce)
	body = appendTLV(body, tlvNonce, nonceBuf[:])

	lifetime := i.LifetimeMs
	if lifetime == 0 {
		lifetime = DefaultLifetimeMs
	}
	var lifeBuf [2]byte
	binary.BigEndian.PutUint16(lifeBuf[:], lifetime)
	body = appendTLV(body, tlvLifetime, lifeBuf[:])

	if i.CanBePrefix {
		body = appendTLV(body, tlvCanBePrefix, nil)
	}
	if i.MustBeFresh {
		body = appendTLV(body, tlvMustBeFresh, nil)
	}
	if len(i.ApplicationParameters) > 0 {
		body = appendTLV(body, tlvAppParameters, i.ApplicationParameters)
	}

	return appendTLV(nil, tlvInterest, body)
}

// DecodeInterest decodes an Interest TLV. Absent CanBePrefix/MustBeFresh
// flags and ApplicationParameters default to false/nil (spec §9 open
// question: decoders tolerate their absence).
func DecodeInterest(buf []byte) (*Interest, error) {
	typ, body, _, err := readTLV(buf, 0)
	if err != nil {
		return nil, err
	}
	if typ != tlvInterest {
		return nil, uerrors.NewParseError("expected Interest TLV", nil)
	}

	i := &Interest{LifetimeMs: DefaultLifetimeMs}
	var sawName, sawNonce bool

	err = iterTLV(body, func(t byte, v []byte) error {
		switch t {
		case tlvName:
			n, err := decodeNameValue(v)
			if err != nil {
				return err
			}
			i.Name = n
			sawName = true
		case tlvNonce:
			if len(v) != 4 {
				return uerrors.NewParseError("malformed Nonce TLV", nil)
			}
			i.Nonce = binary.BigEndian.Uint32(v)
			sawNonce = true
		case tlvLifetime:
			if len(v) != 2 {
				return uerrors.NewParseError("malformed Lifetime TLV", nil)
			}
			i.LifetimeMs = binary.BigEndian.Uint16(v)
		case tlvCanBePrefix:
			i.CanBePrefix = true
		case tlvMustBeFresh:
			i.MustBeFresh = true
		case tlvAppParameters:
			i.ApplicationParameters = append([]byte(nil), v...)
		}
		return nil // unknown types skipped
	})
	if err != nil {
		return nil, err
	}
	if !sawName {
		return nil, uerrors.NewParseError("Interest missing Name", nil)
	}
	if !sawNonce {
		i.Nonce = randomNonce()
	}
	return i, nil
}

// EncodeData encodes d per spec §4.A.
func EncodeData(d *Data) []byte {
	var body []byte
	body = appendTLV(body, tlvName, encodeNameValue(d.Name))

	var meta []byte
	meta = appendTLV(meta, tlvContentType, []byte{byte(d.ContentType)})
	var freshBuf [4]byte
	binary.BigEndian.PutUint32(freshBuf[:], d.FreshnessMs)
	meta = appendTLV(meta, tlvFreshnessMs, freshBuf[:])
	body = appendTLV(body, tlvMetaInfo, meta)

	body = appendTLV(body, tlvContent, d.Content)
	if len(d.SignatureInfo) > 0 {
		body = appendTLV(body, tlvSignatureInfo, d.SignatureInfo)
	}
	if len(d.SignatureValue) > 0 {
		body = appendTLV(body, tlvSignatureValue, d.SignatureValue)
	}

	return appendTLV(nil, tlvData, body)
}

// DecodeData decodes a Data TLV.
func DecodeData(buf []byte) (*Data, error) {
	typ, body, _, err := readTLV(buf, 0)
	if err != nil {
		return nil, err
	}
	if typ != tlvData {
		return nil, uerrors.NewParseError("expected Data TLV", nil)
	}

	d := &Data{}
	var sawName bool

	err = iterTLV(body, func(t byte, v []byte) error {
		switch t {
		case tlvName:
			n, err := decodeNameValue(v)
			if err != nil {
				return err
			}
			d.Name = n
			sawName = true
		case tlvMetaInfo:
			return iterTLV(v, func(mt byte, mv []byte) error {
				switch mt {
				case tlvContentType:
					if len(mv) != 1 {
						return uerrors.NewParseError("malformed ContentType TLV", nil)
					}
					d.ContentType = ContentType(mv[0])
				case tlvFreshnessMs:
					if len(mv) != 4 {
						return uerrors.NewParseError("malformed FreshnessPeriod TLV", nil)
					}
					d.FreshnessMs = binary.BigEndian.Uint32(mv)
				}
				return nil
			})
		case tlvContent:
			d.Content = append([]byte(nil), v...)
		case tlvSignatureInfo:
			d.SignatureInfo = append([]byte(nil), v...)
		case tlvSignatureValue:
			d.SignatureValue = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !sawName {
		return nil, uerrors.NewParseError("Data missing Name", nil)
	}
	return d, nil
}

// EncodeNack encodes n per spec §4.A.
func EncodeNack(n *Nack) []byte {
	var body []byte
	body = append(body, EncodeInterest(&n.Interest)...)

	var reasonBuf [2]byte
	binary.BigEndian.PutUint16(reasonBuf[:], uint16(n.Reason))
	body = appendTLV(body, tlvNackReason, reasonBuf[:])

	if n.Text != "" {
		body = appendTLV(body, tlvNackText, []byte(n.Text))
	}

	return appendTLV(nil, tlvNack, body)
}

// DecodeNack decodes a Nack TLV.
func DecodeNack(buf []byte) (*Nack, error) {
	typ, body, _, err := readTLV(buf, 0)
	if err != nil {
		return nil, err
	}
	if typ != tlvNack {
		return nil, uerrors.NewParseError("expected Nack TLV", nil)
	}

	n := &Nack{}
	var sawInterest, sawReason bool
	pos := 0
	for pos < len(body) {
		t, v, next, err := readTLV(body, pos)
		if err != nil {
			return nil, err
		}
		switch t {
		case tlvInterest:
			interest, err := DecodeInterest(body[pos:next])
			if err != nil {
				return nil, err
			}
			n.Interest = *interest
			sawInterest = true
		case tlvNackReason:
			if len(v) != 2 {
				return nil, uerrors.NewParseError("malformed NackReason TLV", nil)
			}
			n.Reason = NackReason(binary.BigEndian.Uint16(v))
			sawReason = true
		case tlvNackText:
			n.Text = string(v)
		}
		pos = next
	}
	if !sawInterest {
		return nil, uerrors.NewParseError("Nack missing Interest", nil)
	}
	if !sawReason {
		return nil, uerrors.NewParseError("Nack missing Reason", nil)
	}
	return n, nil
}

// PacketKind identifies the outer TLV type a decoded packet carried.
type PacketKind int

const (
	KindInterest PacketKind = iota
	KindData
	KindNack
)

// Decode inspects the outer TLV type of buf and dispatches to the matching
// decoder, returning the decoded packet as one of *Interest, *Data, or
// *Nack alongside its PacketKind.
func Decode(buf []byte) (PacketKind, any, error) {
	if len(buf) == 0 {
		return 0, nil, uerrors.NewParseError("empty buffer", nil)
	}
	switch buf[0] {
	case tlvInterest:
		i, err := DecodeInterest(buf)
		return KindInterest, i, err
	case tlvData:
		d, err := DecodeData(buf)
		return KindData, d, err
	case tlvNack:
		n, err := DecodeNack(buf)
		return KindNack, n, err
	default:
		return 0, nil, uerrors.NewParseError("unrecognized outer TLV type", nil)
	}
}
