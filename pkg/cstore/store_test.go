package cstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ben-mansor/muDCN-v2/pkg/ndn"
)

func TestTTLExpiry(t *testing.T) {
	s := NewStore(100, 0)
	name := ndn.ParseName("/a/b")
	data := ndn.NewData(name, []byte("x"))

	s.Insert(name, data, 20*time.Millisecond)

	got, ok := s.Get(name)
	require.True(t, ok)
	assert.Equal(t, data, got)

	time.Sleep(30 * time.Millisecond)
	_, ok = s.Get(name)
	assert.False(t, ok)
}

func TestCapacityBound(t *testing.T) {
	s := NewStore(10, 0)
	for i := 0; i < 100; i++ {
		name := ndn.ParseName("/cap/" + string(rune('a'+i%26)) + string(rune('0'+i/26)))
		s.Insert(name, ndn.NewData(name, []byte{byte(i)}), time.Hour)
		assert.LessOrEqual(t, s.Len(), 10)
	}
}

func TestRemoveAndClear(t *testing.T) {
	s := NewStore(10, 0)
	name := ndn.ParseName("/a")
	s.Insert(name, ndn.NewData(name, nil), time.Hour)

	assert.True(t, s.Remove(name))
	assert.False(t, s.Remove(name))

	s.Insert(name, ndn.NewData(name, nil), time.Hour)
	assert.False(t, s.IsEmpty())
	s.Clear()
	assert.True(t, s.IsEmpty())
}

func TestGetPromotesToTier1(t *testing.T) {
	s := NewStore(100, 0) // tier1Cap = 10
	names := make([]ndn.Name, 0, 20)
	for i := 0; i < 20; i++ {
		n := ndn.ParseName("/hot/" + string(rune('a'+i)))
		names = append(names, n)
		s.Insert(n, ndn.NewData(n, nil), time.Hour)
	}
	// Touch the last one repeatedly; it must remain retrievable.
	hot := names[len(names)-1]
	for i := 0; i < 5; i++ {
		_, ok := s.Get(hot)
		require.True(t, ok)
	}
}

func TestExpireOldSweepsExpired(t *testing.T) {
	s := NewStore(100, 0)
	name := ndn.ParseName("/stale")
	s.Insert(name, ndn.NewData(name, nil), 5*time.Millisecond)

	time.Sleep(15 * time.Millisecond)
	s.ExpireOld()
	assert.Equal(t, 0, s.Len())
}
