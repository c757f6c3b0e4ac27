package mtu

// RuleBasedModel is the default MTU prediction model (spec §4.G): a fixed
// multiplier chain driven by RTT, loss, throughput, packet-size skew and
// network type, clamped to [minMTU, maxMTU] and rounded to the nearest 100.
type RuleBasedModel struct{}

// NewRuleBasedModel constructs the default model.
func NewRuleBasedModel() *RuleBasedModel { return &RuleBasedModel{} }

// Predict applies spec §4.G's rule table to f, starting from currentMTU.
func (*RuleBasedModel) Predict(f Features, currentMTU, minMTU, maxMTU int) int {
	mtu := float64(currentMTU)

	if f.AvgRTTMs > 100 || f.PacketLossRate > 0.01 {
		mtu *= 0.9
	}
	if f.AvgRTTMs > 200 || f.PacketLossRate > 0.05 {
		mtu *= 0.9
	}
	if f.AvgThroughputBps > 5_000_000 && f.PacketLossRate < 0.005 {
		mtu *= 1.1
	}

	if float64(f.AvgPacketSize) > mtu {
		capAt := float64(f.AvgPacketSize) + 100
		mtu *= 1.05
		if mtu > capAt {
			mtu = capAt
		}
	} else if float64(f.AvgPacketSize) < mtu/2 {
		mtu *= 0.95
	}

	switch f.NetworkType {
	case NetworkWifi:
		mtu *= 0.95
	case NetworkCellular:
		mtu *= 0.85
	}

	if mtu < float64(minMTU) {
		mtu = float64(minMTU)
	}
	if mtu > float64(maxMTU) {
		mtu = float64(maxMTU)
	}

	rounded := int(mtu/100+0.5) * 100
	if rounded < minMTU {
		rounded = minMTU
	}
	if rounded > maxMTU {
		rounded = maxMTU
	}
	return rounded
}

// Update is a no-op for the rule-based model: it has no learned state to
// revise from observed-optimal feedback. Pluggable ML models (spec §4.G)
// use this hook instead.
func (*RuleBasedModel) Update(Features, int) {}
