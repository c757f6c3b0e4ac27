package transport

import (
	"encoding/binary"
	"io"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
	"github.com/ben-mansor/muDCN-v2/pkg/fragment"
)

// defaultMaxFrameBytes bounds a single length-prefixed frame read from a
// stream, guarding against a malicious or corrupt peer claiming an
// unbounded length.
const defaultMaxFrameBytes = 1 << 20

// writeFrame writes a 4-byte big-endian length prefix followed by payload.
// Stream-level length-prefixing is layered on top of the QUIC stream (which
// is otherwise an unstructured byte pipe) so that multiple fragments
// written to the same stream keep distinct boundaries; this is an explicit
// transport-layer framing decision distinct from the NDN TLV length field,
// which only describes a fully reassembled packet (see DESIGN.md).
func writeFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return uerrors.NewIoError("write frame header", err)
	}
	if _, err := w.Write(payload); err != nil {
		return uerrors.NewIoError("write frame payload", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame, rejecting a claimed length
// larger than maxLen.
func readFrame(r io.Reader, maxLen int) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, uerrors.NewIoError("read frame header", err)
	}
	n := int(binary.BigEndian.Uint32(hdr[:]))
	if n < 0 || n > maxLen {
		return nil, uerrors.NewParseError("frame length out of bounds", nil)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, uerrors.NewIoError("read frame payload", err)
	}
	return buf, nil
}

// sendFragmented fragments encoded (a no-op split into a single piece if it
// already fits the fragmenter's MTU) and writes each piece as its own
// length-prefixed frame.
func sendFragmented(w io.Writer, encoded []byte, frag *fragment.Fragmenter) error {
	pieces, err := frag.Fragment(encoded)
	if err != nil {
		return err
	}
	for _, piece := range pieces {
		if err := writeFrame(w, piece); err != nil {
			return err
		}
	}
	return nil
}

// receiveReassembled reads length-prefixed fragment frames from r until
// frag reports a fully reassembled packet, or the stream closes first (an
// IoError) or a frame fails to parse (the fragmenter's ParseError).
func receiveReassembled(r io.Reader, frag *fragment.Fragmenter, maxFrameBytes int) ([]byte, error) {
	for {
		piece, err := readFrame(r, maxFrameBytes)
		if err == io.EOF {
			return nil, uerrors.NewIoError("stream closed before reassembly completed", nil)
		}
		if err != nil {
			return nil, err
		}
		out, done, err := frag.AddFragment(piece)
		if err != nil {
			return nil, err
		}
		if done {
			return out, nil
		}
	}
}
