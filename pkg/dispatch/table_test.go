package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ben-mansor/muDCN-v2/pkg/ndn"
)

func echoHandler(tag string) Handler {
	return func(ctx context.Context, i *ndn.Interest) (*ndn.Data, error) {
		return ndn.NewData(i.Name, []byte(tag)), nil
	}
}

func TestLongestPrefixMatch(t *testing.T) {
	table := NewTable()
	table.RegisterProducer(ndn.ParseName("/a"), echoHandler("A"), 0)
	table.RegisterProducer(ndn.ParseName("/a/b"), echoHandler("AB"), 0)
	table.RegisterProducer(ndn.ParseName("/a/b/c"), echoHandler("ABC"), 0)

	cases := []struct {
		interest string
		want     string
	}{
		{"/a/b/c/d", "ABC"},
		{"/a/b/x", "AB"},
		{"/a/y", "A"},
	}
	for _, c := range cases {
		entry, ok := table.Resolve(ndn.ParseName(c.interest))
		require.True(t, ok, c.interest)
		data, err := entry.Handler(context.Background(), ndn.NewInterest(ndn.ParseName(c.interest)))
		require.NoError(t, err)
		assert.Equal(t, c.want, string(data.Content))
	}

	_, ok := table.Resolve(ndn.ParseName("/z"))
	assert.False(t, ok)
}

func TestPriorityTieBreak(t *testing.T) {
	table := NewTable()
	lowID := table.RegisterRoute(ndn.ParseName("/a"), "peer-low", 1)
	highID := table.RegisterRoute(ndn.ParseName("/a"), "peer-high", 5)

	entry, ok := table.Resolve(ndn.ParseName("/a/b"))
	require.True(t, ok)
	assert.Equal(t, highID, entry.ID)
	assert.Equal(t, "peer-high", entry.PeerAddr)
	_ = lowID
}

func TestEarliestRegistrationTieBreak(t *testing.T) {
	table := NewTable()
	firstID := table.RegisterRoute(ndn.ParseName("/a"), "peer-1", 3)
	table.RegisterRoute(ndn.ParseName("/a"), "peer-2", 3)

	entry, ok := table.Resolve(ndn.ParseName("/a"))
	require.True(t, ok)
	assert.Equal(t, firstID, entry.ID)
}

func TestUnregisterRemovesEntry(t *testing.T) {
	table := NewTable()
	id := table.RegisterProducer(ndn.ParseName("/a"), echoHandler("A"), 0)

	require.NoError(t, table.Unregister(id))
	_, ok := table.Resolve(ndn.ParseName("/a"))
	assert.False(t, ok)

	assert.Error(t, table.Unregister(id))
}
