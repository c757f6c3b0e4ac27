package mtu

import (
	"context"
	"time"

	"github.com/ben-mansor/muDCN-v2/internal/ulog"
)

// DefaultMinMTU and DefaultMaxMTU bound the predictor's output (spec §4.G).
const (
	DefaultMinMTU = 576
	DefaultMaxMTU = 9000
	// significantDelta is the minimum absolute byte delta between the
	// recommendation and the fragmenter's current MTU before the
	// predictor bothers to push an update (spec §4.G).
	significantDelta = 100
)

// MTUSetter is the minimal surface the predictor needs from a Fragmenter.
type MTUSetter interface {
	MTU() int
	SetMTU(int) error
}

// FeatureSource supplies the live connection features the predictor samples
// on each tick. The facade implements it over pkg/transport's connection
// statistics (kept as a narrow function type here so pkg/mtu never imports
// pkg/transport).
type FeatureSource func() Features

// Predictor runs Model.Predict on a timer, pushing the recommendation into
// an MTUSetter whenever it differs from the current MTU by more than
// significantDelta bytes (spec §4.G).
type Predictor struct {
	Model    Model
	Source   FeatureSource
	Target   MTUSetter
	MinMTU   int
	MaxMTU   int
	Interval time.Duration
}

// NewPredictor builds a Predictor using the default rule-based model, the
// spec-default [576, 9000] clamp, and the spec-default 5s tick interval.
func NewPredictor(source FeatureSource, target MTUSetter) *Predictor {
	return &Predictor{
		Model:    NewRuleBasedModel(),
		Source:   source,
		Target:   target,
		MinMTU:   DefaultMinMTU,
		MaxMTU:   DefaultMaxMTU,
		Interval: 5 * time.Second,
	}
}

// Tick runs one prediction cycle immediately, independent of the timer.
// Exposed so tests and the facade's own per-connection prediction loop can
// invoke prediction without relying on Run's timer.
func (p *Predictor) Tick() int {
	features := p.Source()
	current := p.Target.MTU()
	predicted := p.Model.Predict(features, current, p.MinMTU, p.MaxMTU)

	delta := predicted - current
	if delta < 0 {
		delta = -delta
	}
	if delta <= significantDelta {
		return current
	}

	if err := p.Target.SetMTU(predicted); err != nil {
		ulog.Warn("mtu-predictor", "failed to apply predicted mtu", "err", err)
		return current
	}
	ulog.Debug("mtu-predictor", "applied predicted mtu", "from", current, "to", predicted)
	return predicted
}

// Run ticks every p.Interval until ctx is cancelled.
func (p *Predictor) Run(ctx context.Context) {
	if p.Interval <= 0 {
		p.Interval = 5 * time.Second
	}
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}
