// Package uerrors implements the forwarder's error taxonomy (spec §7).
//
// Each kind is a distinct exported type rather than a single tagged enum so
// that callers can use errors.As to recover kind-specific fields (e.g. the
// Nack reason code) without a type switch on a string tag.
package uerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ParseError reports malformed TLV or fragment input. Not retryable.
type ParseError struct {
	Msg   string
	Cause error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Msg, e.Cause)
	}
	return "parse error: " + e.Msg
}

func (e *ParseError) Unwrap() error { return e.Cause }

// NewParseError wraps cause (which may be nil) into a ParseError.
func NewParseError(msg string, cause error) *ParseError {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &ParseError{Msg: msg, Cause: cause}
}

// IoError reports a socket/stream read or write failure. Retryable.
type IoError struct {
	Msg   string
	Cause error
}

func (e *IoError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("io error: %s: %v", e.Msg, e.Cause)
	}
	return "io error: " + e.Msg
}

func (e *IoError) Unwrap() error { return e.Cause }

// NewIoError wraps cause into an IoError.
func NewIoError(msg string, cause error) *IoError {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &IoError{Msg: msg, Cause: cause}
}

// ConnectionError reports a handshake or connection-state failure. Retryable;
// the transport drives the owning tracker to Failed when it surfaces one.
type ConnectionError struct {
	Msg   string
	Cause error
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection error: %s: %v", e.Msg, e.Cause)
	}
	return "connection error: " + e.Msg
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

func NewConnectionError(msg string, cause error) *ConnectionError {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &ConnectionError{Msg: msg, Cause: cause}
}

// TimeoutError reports a deadline exceeded on a blocking operation. Retryable.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return "timeout: " + e.Op }

func NewTimeoutError(op string) *TimeoutError { return &TimeoutError{Op: op} }

// NackReason mirrors the wire NackReason code points (spec §3).
type NackReason uint16

const (
	NackNoRoute    NackReason = 100
	NackCongestion NackReason = 101
	NackDuplicate  NackReason = 102
	NackNoResource NackReason = 200
	NackNotAuth    NackReason = 300
)

func (r NackReason) String() string {
	switch r {
	case NackNoRoute:
		return "NoRoute"
	case NackCongestion:
		return "Congestion"
	case NackDuplicate:
		return "Duplicate"
	case NackNoResource:
		return "NoResource"
	case NackNotAuth:
		return "NotAuth"
	default:
		return fmt.Sprintf("Other(%d)", uint16(r))
	}
}

// NackError surfaces an upstream Nack to the originator. Not retryable.
type NackError struct {
	Reason NackReason
	Text   string
}

func (e *NackError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("nack: %s: %s", e.Reason, e.Text)
	}
	return "nack: " + e.Reason.String()
}

func NewNackError(reason NackReason, text string) *NackError {
	return &NackError{Reason: reason, Text: text}
}

// NotFoundError reports a missing dispatch match, connection id, or
// registration id. Not retryable.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string { return "not found: " + e.What }

func NewNotFoundError(what string) *NotFoundError { return &NotFoundError{What: what} }

// InvalidArgumentError reports an out-of-range MTU, empty name, or malformed
// address. Not retryable.
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string { return "invalid argument: " + e.Msg }

func NewInvalidArgumentError(msg string) *InvalidArgumentError {
	return &InvalidArgumentError{Msg: msg}
}

// InvalidStateError reports a lifecycle mis-sequence. Not retryable.
type InvalidStateError struct {
	From, Op string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s from %s", e.Op, e.From)
}

func NewInvalidStateError(from, op string) *InvalidStateError {
	return &InvalidStateError{From: from, Op: op}
}

// QueueFullError reports a saturated pipeline queue. Caller may retry later.
type QueueFullError struct {
	Peer string
}

func (e *QueueFullError) Error() string { return "queue full: " + e.Peer }

func NewQueueFullError(peer string) *QueueFullError { return &QueueFullError{Peer: peer} }

// CryptoError reports certificate or key generation failure. Fatal to the
// operation it occurred in.
type CryptoError struct {
	Msg   string
	Cause error
}

func (e *CryptoError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("crypto error: %s: %v", e.Msg, e.Cause)
	}
	return "crypto error: " + e.Msg
}

func (e *CryptoError) Unwrap() error { return e.Cause }

func NewCryptoError(msg string, cause error) *CryptoError {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &CryptoError{Msg: msg, Cause: cause}
}

// ReassemblyTimeoutError reports fragments left incomplete past the stale
// threshold. Retryable at the application layer.
type ReassemblyTimeoutError struct {
	FragmentID uint16
}

func (e *ReassemblyTimeoutError) Error() string {
	return fmt.Sprintf("reassembly timeout: fragment_id=%d", e.FragmentID)
}

func NewReassemblyTimeoutError(id uint16) *ReassemblyTimeoutError {
	return &ReassemblyTimeoutError{FragmentID: id}
}

// OffloadError reports a kernel-program/map operation failure. Surfaced; the
// forwarder continues in software-only mode.
type OffloadError struct {
	Msg   string
	Cause error
}

func (e *OffloadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("offload error: %s: %v", e.Msg, e.Cause)
	}
	return "offload error: " + e.Msg
}

func (e *OffloadError) Unwrap() error { return e.Cause }

func NewOffloadError(msg string, cause error) *OffloadError {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &OffloadError{Msg: msg, Cause: cause}
}

// Retryable classifies err per the propagation policy in spec §7: Io,
// Connection, Timeout and ReassemblyTimeout are retried by the pipeline;
// everything else (Parse, Nack, NotFound, InvalidArgument, InvalidState,
// QueueFull, Crypto, Offload) is surfaced unchanged.
func Retryable(err error) bool {
	switch err.(type) {
	case *IoError, *ConnectionError, *TimeoutError, *ReassemblyTimeoutError:
		return true
	default:
		return false
	}
}
