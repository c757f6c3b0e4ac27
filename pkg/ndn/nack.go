package ndn

import "github.com/ben-mansor/muDCN-v2/internal/uerrors"

// NackReason re-exports the wire reason codes from internal/uerrors so
// callers constructing packets don't need to import both packages.
type NackReason = uerrors.NackReason

const (
	NackNoRoute    = uerrors.NackNoRoute
	NackCongestion = uerrors.NackCongestion
	NackDuplicate  = uerrors.NackDuplicate
	NackNoResource = uerrors.NackNoResource
	NackNotAuth    = uerrors.NackNotAuth
)

// Nack is a negative acknowledgment for an Interest (spec §3).
type Nack struct {
	Interest Interest
	Reason   NackReason
	Text     string
}

// NewNack builds a Nack for the given Interest and reason.
func NewNack(interest Interest, reason NackReason, text string) *Nack {
	return &Nack{Interest: interest, Reason: reason, Text: text}
}
