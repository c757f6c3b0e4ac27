package mtu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSetter struct {
	mtu int
	err error
}

func (f *fakeSetter) MTU() int { return f.mtu }
func (f *fakeSetter) SetMTU(v int) error {
	if f.err != nil {
		return f.err
	}
	f.mtu = v
	return nil
}

func TestRuleBasedModelClampsToRange(t *testing.T) {
	m := NewRuleBasedModel()
	got := m.Predict(Features{AvgRTTMs: 500, PacketLossRate: 0.5}, 1400, DefaultMinMTU, DefaultMaxMTU)
	assert.GreaterOrEqual(t, got, DefaultMinMTU)
	assert.LessOrEqual(t, got, DefaultMaxMTU)
}

func TestRuleBasedModelRoundsToHundred(t *testing.T) {
	m := NewRuleBasedModel()
	got := m.Predict(Features{}, 1400, DefaultMinMTU, DefaultMaxMTU)
	assert.Equal(t, 0, got%100)
}

func TestRuleBasedModelHighLossShrinksMTU(t *testing.T) {
	m := NewRuleBasedModel()
	good := m.Predict(Features{AvgRTTMs: 10, PacketLossRate: 0.0}, 1400, DefaultMinMTU, DefaultMaxMTU)
	bad := m.Predict(Features{AvgRTTMs: 250, PacketLossRate: 0.1}, 1400, DefaultMinMTU, DefaultMaxMTU)
	assert.Less(t, bad, good)
}

func TestPredictorAppliesOnlyAboveSignificantDelta(t *testing.T) {
	target := &fakeSetter{mtu: 1400}
	p := NewPredictor(func() Features { return Features{} }, target)

	applied := p.Tick()
	// with zero-value features only the small-packet rule fires (1400*0.95
	// rounds to 1300), a delta of exactly significantDelta, so no update
	// should have been applied.
	assert.Equal(t, 1400, applied)
	assert.Equal(t, 1400, target.mtu)
}

func TestPredictorAppliesLargeDelta(t *testing.T) {
	target := &fakeSetter{mtu: 1400}
	p := NewPredictor(func() Features {
		return Features{AvgRTTMs: 300, PacketLossRate: 0.2}
	}, target)

	applied := p.Tick()
	assert.NotEqual(t, 1400, applied)
	assert.Equal(t, applied, target.mtu)
}
