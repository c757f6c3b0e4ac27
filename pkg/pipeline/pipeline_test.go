package pipeline

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
	"github.com/ben-mansor/muDCN-v2/pkg/ndn"
)

func TestDelayForAttemptDoublesAndCaps(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelayMs: 100, MaxDelayMs: 300, BackoffFactor: 2.0, Jitter: false}
	rnd := rand.New(rand.NewSource(1))

	assert.Equal(t, 100*time.Millisecond, policy.delayForAttempt(1, rnd))
	assert.Equal(t, 200*time.Millisecond, policy.delayForAttempt(2, rnd))
	assert.Equal(t, 300*time.Millisecond, policy.delayForAttempt(3, rnd)) // capped from 400
}

func TestSendInterestSucceedsFirstTry(t *testing.T) {
	var calls atomic.Int64
	p := New("peer1", func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		calls.Add(1)
		return ndn.NewData(i.Name, []byte("ok")), nil
	}, DefaultConfig())

	data, err := p.SendInterest(context.Background(), ndn.NewInterest(ndn.ParseName("/a")))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data.Content))
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, uint64(1), p.Stats().DataReceived)
}

func TestSendInterestRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	cfg := DefaultConfig()
	cfg.Retry = RetryPolicy{MaxAttempts: 3, BaseDelayMs: 5, MaxDelayMs: 50, BackoffFactor: 2.0, Jitter: false}

	p := New("peer1", func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		n := calls.Add(1)
		if n < 3 {
			return nil, uerrors.NewIoError("simulated failure", nil)
		}
		return ndn.NewData(i.Name, []byte("third")), nil
	}, cfg)

	data, err := p.SendInterest(context.Background(), ndn.NewInterest(ndn.ParseName("/a")))
	require.NoError(t, err)
	assert.Equal(t, "third", string(data.Content))
	assert.Equal(t, int64(3), calls.Load())
}

func TestSendInterestNotRetriedOnNack(t *testing.T) {
	var calls atomic.Int64
	p := New("peer1", func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		calls.Add(1)
		return nil, uerrors.NewNackError(uerrors.NackNoRoute, "")
	}, DefaultConfig())

	_, err := p.SendInterest(context.Background(), ndn.NewInterest(ndn.ParseName("/a")))
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestSendInterestExhaustsRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = RetryPolicy{MaxAttempts: 2, BaseDelayMs: 1, MaxDelayMs: 5, BackoffFactor: 2.0, Jitter: false}
	var calls atomic.Int64

	p := New("peer1", func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		calls.Add(1)
		return nil, uerrors.NewIoError("always fails", nil)
	}, cfg)

	_, err := p.SendInterest(context.Background(), ndn.NewInterest(ndn.ParseName("/a")))
	require.Error(t, err)
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, uint64(2), p.Stats().Errors)
}

func TestQueueCapacityRejectsOverflow(t *testing.T) {
	block := make(chan struct{})
	cfg := DefaultConfig()
	cfg.QueueCapacity = 1
	cfg.MaxInFlight = 1

	p := New("peer1", func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		<-block
		return ndn.NewData(i.Name, nil), nil
	}, cfg)

	done := make(chan struct{})
	go func() {
		_, _ = p.SendInterest(context.Background(), ndn.NewInterest(ndn.ParseName("/a")))
		close(done)
	}()
	time.Sleep(20 * time.Millisecond) // let the first send occupy the queue slot

	_, err := p.SendInterest(context.Background(), ndn.NewInterest(ndn.ParseName("/b")))
	require.Error(t, err)
	var qfe *uerrors.QueueFullError
	assert.ErrorAs(t, err, &qfe)

	close(block)
	<-done
}

func TestPerInterestTimeoutClassifiesAsTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerInterestTimeout = 10 * time.Millisecond
	cfg.Retry = RetryPolicy{MaxAttempts: 1, BaseDelayMs: 1, MaxDelayMs: 5, BackoffFactor: 1, Jitter: false}

	p := New("peer1", func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, cfg)

	_, err := p.SendInterest(context.Background(), ndn.NewInterest(ndn.ParseName("/a")))
	require.Error(t, err)
	var te *uerrors.TimeoutError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, uint64(1), p.Stats().Timeouts)
}
