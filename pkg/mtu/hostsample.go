package mtu

import (
	"time"

	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/ben-mansor/muDCN-v2/internal/ulog"
)

// HostInterfaceSampler derives an AvgThroughputBps feature by differencing
// successive gopsutil interface byte counters (SPEC_FULL §4.K). It is an
// additive feature source: the predictor functions from connection-tracker
// stats alone when no sampler is configured.
type HostInterfaceSampler struct {
	Interface string

	lastSample time.Time
	lastBytes  uint64
}

// NewHostInterfaceSampler builds a sampler for the named network interface
// (e.g. "eth0"). An empty name disables sampling; SampleThroughputBps then always
// reports zero throughput.
func NewHostInterfaceSampler(iface string) *HostInterfaceSampler {
	return &HostInterfaceSampler{Interface: iface}
}

// SampleThroughputBps returns bytes/sec sent+received since the previous
// call, or 0 on the first call or if the interface is unset/unreadable.
func (s *HostInterfaceSampler) SampleThroughputBps() float64 {
	if s.Interface == "" {
		return 0
	}
	counters, err := gnet.IOCounters(true)
	if err != nil {
		ulog.Warn("mtu-host-sampler", "failed to read interface counters", "err", err)
		return 0
	}

	var totalBytes uint64
	found := false
	for _, c := range counters {
		if c.Name == s.Interface {
			totalBytes = c.BytesSent + c.BytesRecv
			found = true
			break
		}
	}
	if !found {
		return 0
	}

	now := time.Now()
	defer func() { s.lastSample, s.lastBytes = now, totalBytes }()

	if s.lastSample.IsZero() {
		return 0
	}
	elapsed := now.Sub(s.lastSample).Seconds()
	if elapsed <= 0 || totalBytes < s.lastBytes {
		return 0
	}
	return float64(totalBytes-s.lastBytes) / elapsed
}
