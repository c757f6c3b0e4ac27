package ndn

import (
	"crypto/rand"
	"encoding/binary"
)

// Interest is an NDN request packet (spec §3).
type Interest struct {
	Name                  Name
	Nonce                 uint32
	LifetimeMs            uint16
	CanBePrefix           bool
	MustBeFresh           bool
	ApplicationParameters []byte
}

// DefaultLifetimeMs is the default Interest lifetime (spec §3).
const DefaultLifetimeMs uint16 = 4000

// NewInterest builds an Interest for name with a uniformly random nonce and
// the default 4000ms lifetime.
func NewInterest(name Name) *Interest {
	return &Interest{
		Name:       name,
		Nonce:      randomNonce(),
		LifetimeMs: DefaultLifetimeMs,
	}
}

func randomNonce() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is a practically-impossible environment
		// error; fall back to a fixed nonce rather than panic so callers
		// never need to handle nonce construction failing.
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}
