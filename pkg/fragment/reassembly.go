package fragment

import (
	"bytes"
	"time"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
	"github.com/ben-mansor/muDCN-v2/internal/ulog"
)

// reassemblyContext tracks in-progress reassembly for one fragment_id
// (spec §3). Complete iff len(received) == total.
type reassemblyContext struct {
	total      uint16
	received   map[uint16][]byte
	duplicates int
	startedAt  time.Time
}

// AddFragment feeds one received fragment frame into the reassembler. It
// returns (payload, true, nil) once the parent Data's fragments are all
// present, concatenated in sequence order; (nil, false, nil) while more
// fragments are still pending; or a non-nil error for a bad magic or a
// sequence collision with differing payload bytes.
func (f *Fragmenter) AddFragment(frame []byte) ([]byte, bool, error) {
	hdr, err := DecodeHeader(frame)
	if err != nil {
		return nil, false, err
	}
	payload := frame[HeaderSize:]

	f.mu.Lock()
	defer f.mu.Unlock()

	ctx, ok := f.reassembly[hdr.FragmentID]
	if !ok {
		ctx = &reassemblyContext{
			total:     hdr.TotalFragments,
			received:  make(map[uint16][]byte, hdr.TotalFragments),
			startedAt: time.Now(),
		}
		f.reassembly[hdr.FragmentID] = ctx
	}

	if existing, dup := ctx.received[hdr.Sequence]; dup {
		if !bytes.Equal(existing, payload) {
			return nil, false, uerrors.NewParseError("conflicting fragment payload for same sequence", nil)
		}
		ctx.duplicates++
		return nil, false, nil
	}
	ctx.received[hdr.Sequence] = payload

	if len(ctx.received) != int(ctx.total) {
		return nil, false, nil
	}

	out := make([]byte, 0, int(ctx.total)*len(payload))
	for seq := uint16(0); int(seq) < int(ctx.total); seq++ {
		piece, ok := ctx.received[seq]
		if !ok {
			// Unreachable given the length check above, but guards against
			// a malformed total_fragments that never had every sequence
			// actually filled.
			return nil, false, nil
		}
		out = append(out, piece...)
	}
	delete(f.reassembly, hdr.FragmentID)
	return out, true, nil
}

// PruneStale drops any reassembly context that was started longer ago
// than the fragmenter's stale threshold (default 30s), returning the
// fragment ids of the contexts it dropped so the caller can fail their
// in-flight Data as ReassemblyTimeout (spec §4.B).
func (f *Fragmenter) PruneStale(now time.Time) []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()

	var dropped []uint16
	for id, ctx := range f.reassembly {
		if now.Sub(ctx.startedAt) > f.staleThreshold {
			dropped = append(dropped, id)
			delete(f.reassembly, id)
		}
	}
	if len(dropped) > 0 {
		ulog.Warn("fragmenter", "dropped stale reassembly contexts", "count", len(dropped))
	}
	return dropped
}

// SetStaleThreshold overrides the default 30s reassembly GC threshold.
func (f *Fragmenter) SetStaleThreshold(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleThreshold = d
}

// ReassembleAll is a convenience entry point that feeds an entire, already
// collected set of fragments (in any order, with tolerated duplicates)
// through a throwaway Fragmenter's reassembler in one call. It is used by
// tests exercising the round-trip property directly; production code uses
// the incremental AddFragment as frames arrive off the wire.
func ReassembleAll(frames [][]byte) ([]byte, error) {
	f := NewFragmenter(DefaultMTU)
	var last []byte
	for _, frame := range frames {
		out, done, err := f.AddFragment(frame)
		if err != nil {
			return nil, err
		}
		if done {
			last = out
		}
	}
	if last == nil {
		return nil, uerrors.NewReassemblyTimeoutError(0)
	}
	return last, nil
}
