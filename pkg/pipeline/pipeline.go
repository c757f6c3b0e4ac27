// Package pipeline implements the bounded-concurrency outbound Interest
// pipeline (spec §4.F): a per-peer bounded queue, an in-flight concurrency
// cap, per-Interest timeouts, and retry with exponential backoff.
package pipeline

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
	"github.com/ben-mansor/muDCN-v2/internal/ulog"
	"github.com/ben-mansor/muDCN-v2/pkg/ndn"
)

// SendFunc issues a single attempt to deliver interest over the wire and
// wait for its response. The facade binds each Pipeline to one peer through
// transport.Transport.SendInterestOnce (spec §4.D).
type SendFunc func(ctx context.Context, interest *ndn.Interest) (*ndn.Data, error)

// Stats is a point-in-time snapshot of a Pipeline's counters (spec §4.F,
// §4.J).
type Stats struct {
	InterestsSent uint64
	DataReceived  uint64
	Timeouts      uint64
	Errors        uint64
	AvgRTTMs      float64
	QueueSize     int
	InFlight      int
}

// Config bundles the tunables of a Pipeline; zero values are replaced with
// spec §4.F defaults by New.
type Config struct {
	QueueCapacity      int
	MaxInFlight        int
	PerInterestTimeout time.Duration
	Retry              RetryPolicy
}

// DefaultConfig returns spec §4.F's stated defaults: queue capacity 1000,
// max_in_flight 16, per-Interest timeout 4000ms.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:      1000,
		MaxInFlight:        16,
		PerInterestTimeout: 4 * time.Second,
		Retry:              DefaultRetryPolicy(),
	}
}

// Pipeline bounds and retries Interest sends to a single peer.
type Pipeline struct {
	peer        string
	send        SendFunc
	cfg         Config
	rnd         *rand.Rand
	rndMu       sync.Mutex
	queueN      atomic.Int64
	inFlightN   atomic.Int64
	inFlightSem *semaphore.Weighted

	statsMu       sync.Mutex
	interestsSent uint64
	dataReceived  uint64
	timeouts      uint64
	errors        uint64
	avgRTTMs      float64
}

// New constructs a Pipeline that delivers Interests to peer via send.
// Fields of cfg left at their zero value fall back to DefaultConfig.
func New(peer string, send SendFunc, cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = def.MaxInFlight
	}
	if cfg.PerInterestTimeout <= 0 {
		cfg.PerInterestTimeout = def.PerInterestTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	return &Pipeline{
		peer:        peer,
		send:        send,
		cfg:         cfg,
		rnd:         rand.New(rand.NewSource(1)),
		inFlightSem: semaphore.NewWeighted(int64(cfg.MaxInFlight)),
	}
}

// SendInterest enqueues and delivers interest, retrying per the configured
// RetryPolicy. It returns QueueFullError immediately if the peer's queue is
// already at capacity (spec §4.F, §8 property 9), never blocking the caller
// on the queue itself; once admitted, it blocks on the in-flight semaphore
// until a send slot frees up or ctx is cancelled.
func (p *Pipeline) SendInterest(ctx context.Context, interest *ndn.Interest) (*ndn.Data, error) {
	if p.queueN.Add(1) > int64(p.cfg.QueueCapacity) {
		p.queueN.Add(-1)
		return nil, uerrors.NewQueueFullError(p.peer)
	}
	defer p.queueN.Add(-1)

	if err := p.inFlightSem.Acquire(ctx, 1); err != nil {
		return nil, uerrors.NewTimeoutError("pipeline: waiting for in-flight slot")
	}
	p.inFlightN.Add(1)
	defer func() {
		p.inFlightN.Add(-1)
		p.inFlightSem.Release(1)
	}()

	var lastErr error
	for attempt := 1; attempt <= p.cfg.Retry.MaxAttempts; attempt++ {
		data, err := p.attempt(ctx, interest)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if !uerrors.Retryable(err) {
			ulog.Debug(p.peer, "interest not retryable", "name", interest.Name.String(), "err", err)
			return nil, err
		}
		if attempt == p.cfg.Retry.MaxAttempts {
			break
		}

		delay := p.randDelay(attempt)
		ulog.Debug(p.peer, "retrying interest", "name", interest.Name.String(), "attempt", attempt, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (p *Pipeline) randDelay(attempt int) time.Duration {
	p.rndMu.Lock()
	defer p.rndMu.Unlock()
	return p.cfg.Retry.delayForAttempt(attempt, p.rnd)
}

func (p *Pipeline) attempt(ctx context.Context, interest *ndn.Interest) (*ndn.Data, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.PerInterestTimeout)
	defer cancel()

	start := time.Now()
	p.incSent()

	data, err := p.send(attemptCtx, interest)
	elapsed := time.Since(start)

	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded {
			p.incTimeout()
			return nil, uerrors.NewTimeoutError("pipeline: interest timed out")
		}
		p.incError()
		return nil, err
	}

	p.recordSuccess(elapsed)
	return data, nil
}

func (p *Pipeline) incSent() {
	p.statsMu.Lock()
	p.interestsSent++
	p.statsMu.Unlock()
}

func (p *Pipeline) incTimeout() {
	p.statsMu.Lock()
	p.timeouts++
	p.statsMu.Unlock()
}

func (p *Pipeline) incError() {
	p.statsMu.Lock()
	p.errors++
	p.statsMu.Unlock()
}

// rttEWMAAlpha weights new RTT samples against the running average.
const rttEWMAAlpha = 0.2

func (p *Pipeline) recordSuccess(elapsed time.Duration) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.dataReceived++
	ms := float64(elapsed.Microseconds()) / 1000.0
	if p.avgRTTMs == 0 {
		p.avgRTTMs = ms
	} else {
		p.avgRTTMs = rttEWMAAlpha*ms + (1-rttEWMAAlpha)*p.avgRTTMs
	}
}

// Stats returns a snapshot of the pipeline's counters.
func (p *Pipeline) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return Stats{
		InterestsSent: p.interestsSent,
		DataReceived:  p.dataReceived,
		Timeouts:      p.timeouts,
		Errors:        p.errors,
		AvgRTTMs:      p.avgRTTMs,
		QueueSize:     int(p.queueN.Load()),
		InFlight:      int(p.inFlightN.Load()),
	}
}
