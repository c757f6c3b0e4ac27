package transport

import (
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/ben-mansor/muDCN-v2/pkg/fragment"
)

// State is a connection's position in the lifecycle described in spec §4.D:
// Connecting -> Connected -> Idle -> Closing, with Failed reachable from
// any state on an unrecoverable error.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateIdle
	StateClosing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateIdle:
		return "Idle"
	case StateClosing:
		return "Closing"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

const (
	initialCongestionWindow = 10
	maxCongestionWindow     = 100
	minCongestionWindow     = 1
)

// Stats is a snapshot of one connection's counters (spec §4.D, §4.J).
type Stats struct {
	InterestsSent    uint64
	DataReceived     uint64
	Timeouts         uint64
	Errors           uint64
	AvgRTTMs         float64
	AvgDataSize      float64
	LastActivity     time.Time
	CongestionWindow int
}

// statEWMAAlpha weights new RTT/size samples against the running average.
const statEWMAAlpha = 0.2

// ConnectionTracker wraps a single QUIC connection with the state machine,
// statistics, and congestion-window bookkeeping described in spec §4.D.
// Grounded on original_source/rust_ndn_transport/src/quic.rs's
// ConnectionTracker (report_success/report_failure additive-increase,
// multiplicative-decrease congestion control).
type ConnectionTracker struct {
	mu               sync.Mutex
	conn             quic.Connection
	remoteAddr       string
	state            State
	failReason       string
	congestionWindow int
	stats            Stats

	// frag is this connection's own Fragmenter instance: MTU
	// self-adaptation and fragment-id allocation are per-connection, and
	// giving every peer its own instance also keeps one peer's inbound
	// fragment ids from colliding with another's in a shared reassembly
	// map (spec §4.B, §4.D).
	frag *fragment.Fragmenter
}

// NewConnectionTracker wraps conn, starting in the Connecting state with
// the initial congestion window and a fresh Fragmenter seeded at
// initialMTU.
func NewConnectionTracker(conn quic.Connection, remoteAddr string, initialMTU int) *ConnectionTracker {
	return &ConnectionTracker{
		conn:             conn,
		remoteAddr:       remoteAddr,
		state:            StateConnecting,
		congestionWindow: initialCongestionWindow,
		stats:            Stats{LastActivity: time.Now()},
		frag:             fragment.NewFragmenter(initialMTU),
	}
}

// Connection returns the underlying QUIC connection.
func (t *ConnectionTracker) Connection() quic.Connection { return t.conn }

// Fragmenter returns this connection's Fragmenter, used to frame both its
// outbound sends and inbound reassembly.
func (t *ConnectionTracker) Fragmenter() *fragment.Fragmenter { return t.frag }

// RemoteAddr returns the peer address this tracker was created for.
func (t *ConnectionTracker) RemoteAddr() string { return t.remoteAddr }

// State returns the tracker's current lifecycle state.
func (t *ConnectionTracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState transitions the tracker to state, resetting the congestion
// window to its initial value on a transition into Failed.
func (t *ConnectionTracker) SetState(state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	t.stats.LastActivity = time.Now()
	if state == StateFailed {
		t.congestionWindow = initialCongestionWindow
	}
}

// SetFailReason records why the tracker moved to Failed, for logging.
func (t *ConnectionTracker) SetFailReason(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failReason = reason
}

// FailReason returns the last recorded failure reason, if any.
func (t *ConnectionTracker) FailReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failReason
}

// ReportSuccess records a completed Interest/Data exchange: updates the RTT
// EWMA and average data size, additively increases the congestion window
// (capped at maxCongestionWindow), and recovers the tracker from Idle back
// to Connected (spec §8 property 7: a subsequent successful operation
// returns to Connected).
func (t *ConnectionTracker) ReportSuccess(rtt time.Duration, dataSize int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateIdle {
		t.state = StateConnected
	}

	t.stats.InterestsSent++
	t.stats.DataReceived++
	t.stats.LastActivity = time.Now()

	ms := float64(rtt.Microseconds()) / 1000.0
	if t.stats.AvgRTTMs == 0 {
		t.stats.AvgRTTMs = ms
	} else {
		t.stats.AvgRTTMs = statEWMAAlpha*ms + (1-statEWMAAlpha)*t.stats.AvgRTTMs
	}

	size := float64(dataSize)
	if t.stats.AvgDataSize == 0 {
		t.stats.AvgDataSize = size
	} else {
		t.stats.AvgDataSize = statEWMAAlpha*size + (1-statEWMAAlpha)*t.stats.AvgDataSize
	}

	if t.congestionWindow < maxCongestionWindow {
		t.congestionWindow++
	}
}

// ReportFailure records a timeout/Nack/IO failure: multiplicatively
// shrinks the congestion window (floored at minCongestionWindow).
func (t *ConnectionTracker) ReportFailure(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Errors++
	t.stats.LastActivity = time.Now()
	t.failReason = reason

	t.congestionWindow = (t.congestionWindow * 3) / 4
	if t.congestionWindow < minCongestionWindow {
		t.congestionWindow = minCongestionWindow
	}
}

// ReportTimeout records a timed-out exchange in addition to the
// congestion-window effects of ReportFailure.
func (t *ConnectionTracker) ReportTimeout(reason string) {
	t.mu.Lock()
	t.stats.Timeouts++
	t.mu.Unlock()
	t.ReportFailure(reason)
}

// CongestionWindow returns the current advisory congestion window size.
func (t *ConnectionTracker) CongestionWindow() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.congestionWindow
}

// IsIdle reports whether threshold has elapsed since the last activity.
func (t *ConnectionTracker) IsIdle(threshold time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.stats.LastActivity) > threshold
}

// Stats returns a snapshot of the tracker's counters.
func (t *ConnectionTracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.CongestionWindow = t.congestionWindow
	return s
}
