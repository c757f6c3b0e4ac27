package fragment

import (
	"sort"
	"sync"
	"time"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
	"github.com/ben-mansor/muDCN-v2/internal/ulog"
)

// DefaultMTU is the starting MTU before any adaptation occurs (spec §4.B).
const DefaultMTU = 1400

// maxHistorySamples bounds the sliding window of observed outgoing packet
// sizes used by predictOptimalMTU (spec §4.B). Every packet passed to
// Fragment is recorded, whether Data, Interest or Nack.
const maxHistorySamples = 100

// minAdjustmentInterval is how long adaptMTU waits between adjustments.
const minAdjustmentInterval = 30 * time.Second

// adjustmentThresholdFraction is the minimum relative delta (10%) required
// before adaptMTU applies a new prediction.
const adjustmentThresholdFraction = 0.10

// DefaultStaleThreshold is how long an incomplete ReassemblyContext may sit
// idle before it is garbage collected (spec §4.B).
const DefaultStaleThreshold = 30 * time.Second

// Fragmenter splits oversized Data into sequenced fragments, reassembles
// them on the receiving side, and adapts its own MTU from a rolling sample
// of the sizes of the packets it has fragmented (spec §4.B, §4.C "two concurrent MTU
// adjustment mechanisms": this is the fast size-history one; pkg/mtu is
// the slower, stats-driven one (component G) that calls SetMTU from the
// outside).
type Fragmenter struct {
	mu             sync.Mutex
	mtu            int
	nextFragmentID uint16
	history        []int
	lastAdjustment time.Time
	staleThreshold time.Duration

	reassembly map[uint16]*reassemblyContext
}

// NewFragmenter constructs a Fragmenter starting at initialMTU (use
// DefaultMTU if unset).
func NewFragmenter(initialMTU int) *Fragmenter {
	if initialMTU <= HeaderSize {
		initialMTU = DefaultMTU
	}
	return &Fragmenter{
		mtu:            initialMTU,
		staleThreshold: DefaultStaleThreshold,
		reassembly:     make(map[uint16]*reassemblyContext),
	}
}

// MTU returns the fragmenter's current MTU.
func (f *Fragmenter) MTU() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mtu
}

// SetMTU forcibly overrides the current MTU, bypassing the 30s/10% gate
// that governs adaptMTU's own adjustments. Used by pkg/mtu (component G)
// and by explicit operator configuration.
func (f *Fragmenter) SetMTU(mtu int) error {
	if mtu <= HeaderSize {
		return uerrors.NewInvalidArgumentError("mtu must exceed the fragment header size")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mtu = mtu
	return nil
}

// Fragment splits encoded into ceil(len(encoded)/(mtu-8)) fragments, each an
// 8-byte Header followed by a contiguous slice of encoded. An encoded
// packet that fits the MTU yields a single fragment (total 1, is_final
// set); pkg/transport passes every packet it writes through Fragment, so
// such packets still carry the 8-byte header on the wire.
func (f *Fragmenter) Fragment(encoded []byte) ([][]byte, error) {
	f.mu.Lock()
	mtu := f.mtu
	f.nextFragmentID++
	fragmentID := f.nextFragmentID
	f.mu.Unlock()

	payloadSize := mtu - HeaderSize
	if payloadSize <= 0 {
		return nil, uerrors.NewInvalidArgumentError("mtu too small to carry any fragment payload")
	}

	total := (len(encoded) + payloadSize - 1) / payloadSize
	if total == 0 {
		total = 1
	}
	if total > 0x7FFF {
		return nil, uerrors.NewInvalidArgumentError("data too large to fragment under current mtu")
	}

	out := make([][]byte, 0, total)
	for seq := 0; seq < total; seq++ {
		start := seq * payloadSize
		end := start + payloadSize
		if end > len(encoded) {
			end = len(encoded)
		}
		hdr := Header{
			IsFinal:        seq == total-1,
			FragmentID:     fragmentID,
			Sequence:       uint16(seq),
			TotalFragments: uint16(total),
		}
		hb := hdr.Encode()
		frame := make([]byte, 0, HeaderSize+end-start)
		frame = append(frame, hb[:]...)
		frame = append(frame, encoded[start:end]...)
		out = append(out, frame)
	}

	f.recordObservedSize(len(encoded))
	f.adaptMTU()
	return out, nil
}

// recordObservedSize appends size to the rolling history, evicting the
// oldest sample once the window exceeds maxHistorySamples.
func (f *Fragmenter) recordObservedSize(size int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, size)
	if len(f.history) > maxHistorySamples {
		f.history = f.history[len(f.history)-maxHistorySamples:]
	}
}

// predictOptimalMTU computes the 95th percentile of the observed size
// history, plus the 8-byte header, plus 50 bytes of slack, rounded up to
// the next 100, floored at header+100 (spec §4.B). Must be called with
// f.mu held.
func (f *Fragmenter) predictOptimalMTULocked() int {
	if len(f.history) == 0 {
		return f.mtu
	}
	sorted := append([]int(nil), f.history...)
	sort.Ints(sorted)

	idx := int(0.95 * float64(len(sorted)-1))
	p95 := sorted[idx]

	candidate := p95 + HeaderSize + 50
	rounded := ((candidate + 99) / 100) * 100
	floor := HeaderSize + 100
	if rounded < floor {
		rounded = floor
	}
	return rounded
}

// adaptMTU applies predictOptimalMTU's recommendation only if at least 30s
// have elapsed since the last adjustment and the delta exceeds 10% of the
// current MTU (spec §4.B). Called on every Fragment invocation.
func (f *Fragmenter) adaptMTU() {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	if !f.lastAdjustment.IsZero() && now.Sub(f.lastAdjustment) < minAdjustmentInterval {
		return
	}

	predicted := f.predictOptimalMTULocked()
	delta := predicted - f.mtu
	if delta < 0 {
		delta = -delta
	}
	if float64(delta) <= adjustmentThresholdFraction*float64(f.mtu) {
		return
	}

	ulog.Debug("fragmenter", "adapting mtu", "from", f.mtu, "to", predicted)
	f.mtu = predicted
	f.lastAdjustment = now
}
