package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
	"github.com/ben-mansor/muDCN-v2/pkg/ndn"
)

func newLoopbackServer(t *testing.T, handler Handler) *Transport {
	t.Helper()
	tr, err := New(Config{BindAddress: "127.0.0.1", Port: 0}, handler)
	require.NoError(t, err)
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { _ = tr.Stop() })
	return tr
}

func TestSendInterestRoundTrip(t *testing.T) {
	server := newLoopbackServer(t, func(ctx context.Context, peer string, i *ndn.Interest) (*ndn.Data, error) {
		return ndn.NewData(i.Name, []byte("pong")), nil
	})
	client, err := New(Config{BindAddress: "127.0.0.1", Port: 0}, nil)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := client.SendInterestOnce(ctx, server.Addr().String(), ndn.NewInterest(ndn.ParseName("/ping")))
	require.NoError(t, err)
	assert.Equal(t, "pong", string(data.Content))
}

func TestSendInterestReceivesNack(t *testing.T) {
	server := newLoopbackServer(t, func(ctx context.Context, peer string, i *ndn.Interest) (*ndn.Data, error) {
		return nil, uerrors.NewNackError(uerrors.NackNoRoute, "no route to prefix")
	})
	client, err := New(Config{BindAddress: "127.0.0.1", Port: 0}, nil)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = client.SendInterestOnce(ctx, server.Addr().String(), ndn.NewInterest(ndn.ParseName("/missing")))
	require.Error(t, err)
	var nackErr *uerrors.NackError
	require.ErrorAs(t, err, &nackErr)
	assert.Equal(t, uerrors.NackNoRoute, nackErr.Reason)
}

func TestSendInterestLargeDataIsFragmentedAndReassembled(t *testing.T) {
	big := make([]byte, 20000)
	for i := range big {
		big[i] = byte(i % 251)
	}
	server := newLoopbackServer(t, func(ctx context.Context, peer string, i *ndn.Interest) (*ndn.Data, error) {
		return ndn.NewData(i.Name, big), nil
	})
	client, err := New(Config{BindAddress: "127.0.0.1", Port: 0}, nil)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := client.SendInterestOnce(ctx, server.Addr().String(), ndn.NewInterest(ndn.ParseName("/big")))
	require.NoError(t, err)
	assert.Equal(t, big, data.Content)
}

func TestSendInterestTimesOutWhenServerNeverResponds(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	server := newLoopbackServer(t, func(ctx context.Context, peer string, i *ndn.Interest) (*ndn.Data, error) {
		<-block
		return ndn.NewData(i.Name, nil), nil
	})

	client, err := New(Config{BindAddress: "127.0.0.1", Port: 0, ReadTimeout: 100 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = client.SendInterestOnce(ctx, server.Addr().String(), ndn.NewInterest(ndn.ParseName("/slow")))
	require.Error(t, err)
}

func TestStartTwiceReturnsInvalidState(t *testing.T) {
	tr, err := New(Config{BindAddress: "127.0.0.1", Port: 0}, func(ctx context.Context, peer string, i *ndn.Interest) (*ndn.Data, error) {
		return ndn.NewData(i.Name, nil), nil
	})
	require.NoError(t, err)
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	err = tr.Start(context.Background())
	require.Error(t, err)
	var ise *uerrors.InvalidStateError
	assert.ErrorAs(t, err, &ise)
}

func TestStopWithoutStartReturnsInvalidState(t *testing.T) {
	tr, err := New(Config{BindAddress: "127.0.0.1", Port: 0}, nil)
	require.NoError(t, err)
	defer tr.Close()

	err = tr.Stop()
	require.Error(t, err)
}
