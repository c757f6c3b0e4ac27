package forwarder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
	"github.com/ben-mansor/muDCN-v2/pkg/mtu"
	"github.com/ben-mansor/muDCN-v2/pkg/ndn"
)

func newTestForwarder(t *testing.T) *Forwarder {
	t.Helper()
	f, err := New(Config{BindAddress: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() {
		if f.State() == StateStopped {
			_ = f.Close()
			return
		}
		_ = f.Stop()
	})
	return f
}

func TestStartStopLifecycle(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Start(context.Background()))
	assert.Equal(t, StateRunning, f.State())

	require.NoError(t, f.Stop())
	assert.Equal(t, StateStopped, f.State())
}

func TestStopFromStoppedIsIdempotent(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Stop())
	assert.Equal(t, StateStopped, f.State())
}

func TestPauseFromStoppedReturnsInvalidState(t *testing.T) {
	f := newTestForwarder(t)
	err := f.Pause()
	require.Error(t, err)
	var ise *uerrors.InvalidStateError
	assert.ErrorAs(t, err, &ise)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Start(context.Background()))

	require.NoError(t, f.Pause())
	assert.Equal(t, StatePaused, f.State())

	require.NoError(t, f.Resume())
	assert.Equal(t, StateRunning, f.State())
}

func TestPausedForwarderNacksNewInterests(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Start(context.Background()))
	require.NoError(t, f.Pause())

	_, err := f.serve(context.Background(), "peer", ndn.NewInterest(ndn.ParseName("/a")))
	require.Error(t, err)
	var nackErr *uerrors.NackError
	require.ErrorAs(t, err, &nackErr)
	assert.Equal(t, uerrors.NackCongestion, nackErr.Reason)
}

func TestServeResolvesRegisteredProducer(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Start(context.Background()))

	f.RegisterProducer(ndn.ParseName("/echo"), func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		return ndn.NewData(i.Name, []byte("ok")), nil
	}, 0)

	data, err := f.serve(context.Background(), "peer", ndn.NewInterest(ndn.ParseName("/echo/x")))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data.Content))
}

func TestServeCachesProducerResponse(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Start(context.Background()))

	calls := 0
	f.RegisterProducer(ndn.ParseName("/echo"), func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		calls++
		d := ndn.NewData(i.Name, []byte("ok"))
		d.FreshnessMs = 60000
		return d, nil
	}, 0)

	name := ndn.ParseName("/echo/x")
	_, err := f.serve(context.Background(), "peer", ndn.NewInterest(name))
	require.NoError(t, err)
	_, err = f.serve(context.Background(), "peer", ndn.NewInterest(name))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestServeWithNoRouteReturnsNack(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Start(context.Background()))

	_, err := f.serve(context.Background(), "peer", ndn.NewInterest(ndn.ParseName("/missing")))
	require.Error(t, err)
	var nackErr *uerrors.NackError
	require.ErrorAs(t, err, &nackErr)
	assert.Equal(t, uerrors.NackNoRoute, nackErr.Reason)
}

func TestMTUSetRejectsOutOfRange(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Start(context.Background()))

	err := f.MTUSet(100)
	require.Error(t, err)
	var iae *uerrors.InvalidArgumentError
	assert.ErrorAs(t, err, &iae)

	require.NoError(t, f.MTUSet(1500))
	assert.Equal(t, 1500, f.MTUGet())
}

func TestStatsReflectsContentStoreSize(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Start(context.Background()))

	f.RegisterProducer(ndn.ParseName("/echo"), func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		return ndn.NewData(i.Name, []byte("ok")), nil
	}, 0)
	_, err := f.serve(context.Background(), "peer", ndn.NewInterest(ndn.ParseName("/echo/x")))
	require.NoError(t, err)

	snap := f.Stats()
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, 1, snap.ContentStoreSize)
}

func TestUnregisterRemovesProducer(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Start(context.Background()))

	id := f.RegisterProducer(ndn.ParseName("/echo"), func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		return ndn.NewData(i.Name, nil), nil
	}, 0)
	require.NoError(t, f.Unregister(id))

	_, err := f.serve(context.Background(), "peer", ndn.NewInterest(ndn.ParseName("/echo/x")))
	require.Error(t, err)
	var nackErr *uerrors.NackError
	require.ErrorAs(t, err, &nackErr)
	assert.Equal(t, uerrors.NackNoRoute, nackErr.Reason)
}

func TestSendInterestEndToEndOverTransport(t *testing.T) {
	server := newTestForwarder(t)
	server.RegisterProducer(ndn.ParseName("/ping"), func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		return ndn.NewData(i.Name, []byte("pong")), nil
	}, 0)
	require.NoError(t, server.Start(context.Background()))

	client := newTestForwarder(t)
	require.NoError(t, client.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := client.SendInterest(ctx, server.Addr(), ndn.NewInterest(ndn.ParseName("/ping")))
	require.NoError(t, err)
	assert.Equal(t, "pong", string(data.Content))
}

func TestCreateConnectionThenConnectionStatsAndClose(t *testing.T) {
	server := newTestForwarder(t)
	server.RegisterProducer(ndn.ParseName("/ping"), func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		return ndn.NewData(i.Name, []byte("pong")), nil
	}, 0)
	require.NoError(t, server.Start(context.Background()))

	client := newTestForwarder(t)
	require.NoError(t, client.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connID, err := client.CreateConnection(ctx, server.Addr(), 0)
	require.NoError(t, err)
	assert.Equal(t, server.Addr(), connID)

	_, err = client.ConnectionStats(connID)
	require.NoError(t, err)

	require.NoError(t, client.CloseConnection(connID))

	_, err = client.ConnectionStats(connID)
	require.Error(t, err)
	var nfe *uerrors.NotFoundError
	assert.ErrorAs(t, err, &nfe)
}

func TestConnectionStatsForUnknownPeerErrors(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Start(context.Background()))

	_, err := f.ConnectionStats("127.0.0.1:1")
	require.Error(t, err)
	var nfe *uerrors.NotFoundError
	assert.ErrorAs(t, err, &nfe)
}

func TestPipelineStatsReflectsSentInterests(t *testing.T) {
	server := newTestForwarder(t)
	server.RegisterProducer(ndn.ParseName("/ping"), func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		return ndn.NewData(i.Name, []byte("pong")), nil
	}, 0)
	require.NoError(t, server.Start(context.Background()))

	client := newTestForwarder(t)
	require.NoError(t, client.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.SendInterest(ctx, server.Addr(), ndn.NewInterest(ndn.ParseName("/ping")))
	require.NoError(t, err)

	stats, err := client.PipelineStats(server.Addr())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.InterestsSent)
}

func TestPipelineStatsForUnknownPeerErrors(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Start(context.Background()))

	_, err := f.PipelineStats("127.0.0.1:1")
	require.Error(t, err)
	var nfe *uerrors.NotFoundError
	assert.ErrorAs(t, err, &nfe)
}

func TestMTUPredictDoesNotMutateAnyFragmenter(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Start(context.Background()))

	before := f.MTUGet()
	recommended := f.MTUPredict(mtu.Features{AvgRTTMs: 250, PacketLossRate: 0.08})
	assert.Less(t, recommended, before)
	assert.Equal(t, before, f.MTUGet())
}

func TestMTUOverrideAppliesValueAndNilIsNoop(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Start(context.Background()))

	value := 1400
	require.NoError(t, f.MTUOverride(&value))
	assert.Equal(t, 1400, f.MTUGet())

	require.NoError(t, f.MTUOverride(nil))
	assert.Equal(t, 1400, f.MTUGet())
}

func TestMetricsIsAliasForStats(t *testing.T) {
	f := newTestForwarder(t)
	require.NoError(t, f.Start(context.Background()))

	assert.Equal(t, f.Stats().State, f.Metrics().State)
}
