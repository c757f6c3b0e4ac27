package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCongestionWindowAdditiveIncrease(t *testing.T) {
	tr := &ConnectionTracker{congestionWindow: initialCongestionWindow}
	for i := 0; i < 5; i++ {
		tr.ReportSuccess(10*time.Millisecond, 100)
	}
	assert.Equal(t, initialCongestionWindow+5, tr.CongestionWindow())
}

func TestCongestionWindowCapsAtMax(t *testing.T) {
	tr := &ConnectionTracker{congestionWindow: maxCongestionWindow}
	tr.ReportSuccess(time.Millisecond, 10)
	assert.Equal(t, maxCongestionWindow, tr.CongestionWindow())
}

func TestCongestionWindowMultiplicativeDecrease(t *testing.T) {
	tr := &ConnectionTracker{congestionWindow: 20}
	tr.ReportFailure("simulated")
	assert.Equal(t, 15, tr.CongestionWindow()) // (20*3)/4
}

func TestCongestionWindowFloorsAtMin(t *testing.T) {
	tr := &ConnectionTracker{congestionWindow: 1}
	tr.ReportFailure("simulated")
	assert.Equal(t, minCongestionWindow, tr.CongestionWindow())
}

func TestSetStateFailedResetsWindow(t *testing.T) {
	tr := &ConnectionTracker{congestionWindow: 77}
	tr.SetState(StateFailed)
	assert.Equal(t, initialCongestionWindow, tr.CongestionWindow())
	assert.Equal(t, StateFailed, tr.State())
}

func TestReportSuccessRecoversFromIdleToConnected(t *testing.T) {
	tr := &ConnectionTracker{congestionWindow: initialCongestionWindow, state: StateIdle}
	tr.ReportSuccess(10*time.Millisecond, 100)
	assert.Equal(t, StateConnected, tr.State())
}

func TestReportSuccessLeavesConnectedUnchanged(t *testing.T) {
	tr := &ConnectionTracker{congestionWindow: initialCongestionWindow, state: StateConnected}
	tr.ReportSuccess(10*time.Millisecond, 100)
	assert.Equal(t, StateConnected, tr.State())
}

func TestIsIdleReflectsLastActivity(t *testing.T) {
	tr := NewConnectionTracker(nil, "peer", 1400)
	assert.False(t, tr.IsIdle(time.Hour))
	tr.stats.LastActivity = time.Now().Add(-2 * time.Hour)
	assert.True(t, tr.IsIdle(time.Hour))
}
