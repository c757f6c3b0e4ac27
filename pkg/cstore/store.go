// Package cstore implements the Content Store (spec §4.C): a two-tier
// cache with TTL expiry, a small hot LRU tier backed by a larger full-size
// map tier.
package cstore

import (
	"container/list"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ben-mansor/muDCN-v2/pkg/ndn"
)

// entry is the TTL-bearing unit stored in both tiers (spec §3
// ContentStoreEntry). Entries are immutable once inserted; both tiers
// reference the same *entry value, so promotion/eviction never copies the
// underlying Data.
type entry struct {
	data      *ndn.Data
	createdAt time.Time
	ttl       time.Duration
}

func (e *entry) isExpired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// Store is the two-tier Content Store. Tier-1 is a fixed-capacity LRU of
// the hottest ceil(capacity/10) entries; tier-2 is a concurrent TTL map
// holding all entries up to capacity (spec §4.C).
type Store struct {
	capacity int
	tier1Cap int

	mu        sync.Mutex
	tier1List *list.List
	tier1Map  map[string]*list.Element // name text -> list element of *entry

	tier2 *gocache.Cache
}

type listItem struct {
	key   string
	entry *entry
}

// NewStore builds a Store holding up to capacity entries, with the tier-1
// hot set sized at ceil(capacity/10) and expired entries swept every
// sweepInterval (0 disables the background sweep; callers may still invoke
// ExpireOld manually).
func NewStore(capacity int, sweepInterval time.Duration) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	tier1Cap := (capacity + 9) / 10
	if tier1Cap < 1 {
		tier1Cap = 1
	}

	cleanup := sweepInterval
	if cleanup <= 0 {
		cleanup = gocache.NoExpiration
	}
	return &Store{
		capacity:  capacity,
		tier1Cap:  tier1Cap,
		tier1List: list.New(),
		tier1Map:  make(map[string]*list.Element),
		tier2:     gocache.New(gocache.NoExpiration, cleanup),
	}
}

// Insert stores data under name with the given ttl. If the store is at
// capacity and name is not already present, one entry is evicted first:
// the LRU tail of tier-1, or (if tier-1 is empty) an arbitrary tier-2
// entry (spec §4.C).
func (s *Store) Insert(name ndn.Name, data *ndn.Data, ttl time.Duration) {
	key := name.String()
	e := &entry{data: data, createdAt: time.Now(), ttl: ttl}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, alreadyPresent := s.tier2.Get(key)
	if !alreadyPresent && s.tier2.ItemCount() >= s.capacity {
		s.evictOneLocked()
	}

	s.tier2.Set(key, e, ttl)
	s.promoteLocked(key, e)
}

// Get consults tier-1 first; on a hit it checks expiry (removing from both
// tiers and returning false if expired) and otherwise moves the entry to
// the front of the tier-1 LRU and returns the cached Data. On a tier-1 miss it consults tier-2 and, on a hit, promotes the entry into
// tier-1. Get never returns an entry past its TTL (spec §4.C).
func (s *Store) Get(name ndn.Name) (*ndn.Data, bool) {
	key := name.String()
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.tier1Map[key]; ok {
		item := el.Value.(*listItem)
		if item.entry.isExpired(now) {
			s.removeLocked(key)
			return nil, false
		}
		s.tier1List.MoveToFront(el)
		return item.entry.data, true
	}

	raw, ok := s.tier2.Get(key)
	if !ok {
		return nil, false
	}
	e := raw.(*entry)
	if e.isExpired(now) {
		s.removeLocked(key)
		return nil, false
	}
	s.promoteLocked(key, e)
	return e.data, true
}

// Remove deletes name from both tiers, reporting whether it was present.
func (s *Store) Remove(name ndn.Name) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := name.String()
	_, present := s.tier2.Get(key)
	if !present {
		return false
	}
	s.removeLocked(key)
	return true
}

// Clear empties both tiers.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tier2.Flush()
	s.tier1List.Init()
	s.tier1Map = make(map[string]*list.Element)
}

// Len returns the number of entries currently held (tier-2's size, which
// is an upper bound on tier-1's).
func (s *Store) Len() int {
	return s.tier2.ItemCount()
}

// IsEmpty reports whether the store holds no entries.
func (s *Store) IsEmpty() bool { return s.Len() == 0 }

// ExpireOld scans tier-2 and drops expired entries from both tiers. Not on
// the hot path; intended to be invoked periodically (spec §4.C) in
// addition to the janitor gocache already runs internally.
func (s *Store) ExpireOld() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, raw := range s.tier2.Items() {
		e, ok := raw.Object.(*entry)
		if ok && e.isExpired(now) {
			s.removeLocked(key)
		}
	}
	// Items() omits entries gocache already considers expired, so those are
	// dropped from tier-1 by their own TTL and from tier-2 via DeleteExpired.
	for key, el := range s.tier1Map {
		if el.Value.(*listItem).entry.isExpired(now) {
			s.removeLocked(key)
		}
	}
	s.tier2.DeleteExpired()
}

// promoteLocked inserts or moves key to the front of the tier-1 LRU,
// evicting the tier-1 tail if that pushes tier-1 over its own capacity.
// Tier-1 eviction never touches tier-2 (tier-1 ⊆ tier-2 is preserved by
// simply demoting, not removing).
func (s *Store) promoteLocked(key string, e *entry) {
	if el, ok := s.tier1Map[key]; ok {
		el.Value.(*listItem).entry = e
		s.tier1List.MoveToFront(el)
		return
	}

	el := s.tier1List.PushFront(&listItem{key: key, entry: e})
	s.tier1Map[key] = el

	if s.tier1List.Len() > s.tier1Cap {
		tail := s.tier1List.Back()
		s.tier1List.Remove(tail)
		delete(s.tier1Map, tail.Value.(*listItem).key)
	}
}

// evictOneLocked drops the tier-1 LRU tail, or an arbitrary tier-2 entry
// if tier-1 is currently empty (spec §4.C).
func (s *Store) evictOneLocked() {
	if tail := s.tier1List.Back(); tail != nil {
		key := tail.Value.(*listItem).key
		s.removeLocked(key)
		return
	}
	for key := range s.tier2.Items() {
		s.removeLocked(key)
		return
	}
}

func (s *Store) removeLocked(key string) {
	s.tier2.Delete(key)
	if el, ok := s.tier1Map[key]; ok {
		s.tier1List.Remove(el)
		delete(s.tier1Map, key)
	}
}
