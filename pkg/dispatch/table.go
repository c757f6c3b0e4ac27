// Package dispatch implements the Dispatch Table (spec §4.E): a concurrent
// longest-prefix match over registered local producer handlers and
// forwarding routes.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
	"github.com/ben-mansor/muDCN-v2/pkg/ndn"
)

// Handler answers an Interest with a Data or an error (spec §4.E, §9:
// "handler polymorphism" — local function and forwarded-route are both
// tagged variants of this one capability, not a class hierarchy).
type Handler func(ctx context.Context, interest *ndn.Interest) (*ndn.Data, error)

// Kind distinguishes a local producer registration from a forwarding route.
type Kind int

const (
	KindProducer Kind = iota
	KindRoute
)

// Entry is one registered dispatch table entry (spec §3 DispatchEntry).
type Entry struct {
	ID       uint64
	Prefix   ndn.Name
	Kind     Kind
	Handler  Handler // set when Kind == KindProducer
	PeerAddr string  // set when Kind == KindRoute
	Priority int

	seq uint64 // registration order, for tie-breaking
}

// Table is the concurrent dispatch table.
type Table struct {
	mu      sync.RWMutex
	root    *node
	nextID  atomic.Uint64
	nextSeq atomic.Uint64
	byID    map[uint64]*node
}

type node struct {
	children map[uint64]*node
	entries  []*Entry // entries registered exactly at this prefix
}

func newNode() *node {
	return &node{children: make(map[uint64]*node)}
}

// NewTable constructs an empty dispatch table.
func NewTable() *Table {
	return &Table{root: newNode(), byID: make(map[uint64]*node)}
}

func componentKey(c ndn.Component) uint64 {
	return xxhash.Sum64(c.Bytes())
}

// RegisterProducer attaches handler as the producer for prefix, returning
// its registration id.
func (t *Table) RegisterProducer(prefix ndn.Name, handler Handler, priority int) uint64 {
	return t.register(prefix, &Entry{Kind: KindProducer, Handler: handler, Priority: priority})
}

// RegisterRoute attaches a forwarding route to peerAddr for prefix,
// returning its registration id.
func (t *Table) RegisterRoute(prefix ndn.Name, peerAddr string, priority int) uint64 {
	return t.register(prefix, &Entry{Kind: KindRoute, PeerAddr: peerAddr, Priority: priority})
}

func (t *Table) register(prefix ndn.Name, e *Entry) uint64 {
	e.ID = t.nextID.Add(1)
	e.Prefix = prefix
	e.seq = t.nextSeq.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.root
	for i := 0; i < prefix.Len(); i++ {
		key := componentKey(prefix.At(i))
		child, ok := n.children[key]
		if !ok {
			child = newNode()
			n.children[key] = child
		}
		n = child
	}
	n.entries = append(n.entries, e)
	t.byID[e.ID] = n
	return e.ID
}

// Unregister removes the entry with the given id. Returns NotFoundError if
// no such registration exists.
func (t *Table) Unregister(id uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.byID[id]
	if !ok {
		return uerrors.NewNotFoundError("dispatch registration id")
	}
	for i, e := range n.entries {
		if e.ID == id {
			n.entries = append(n.entries[:i], n.entries[i+1:]...)
			break
		}
	}
	delete(t.byID, id)
	return nil
}

// Resolve returns the registered entry whose prefix is the longest
// registered prefix of name, breaking ties by higher priority then by
// earliest registration (spec §4.E, §8 property 5). Returns (nil, false)
// if no registered prefix matches.
func (t *Table) Resolve(name ndn.Name) (*Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.root
	var best *Entry
	if len(n.entries) > 0 {
		best = pickBest(n.entries)
	}

	for i := 0; i < name.Len(); i++ {
		key := componentKey(name.At(i))
		child, ok := n.children[key]
		if !ok {
			break
		}
		n = child
		if len(n.entries) > 0 {
			best = pickBest(n.entries)
		}
	}

	if best == nil {
		return nil, false
	}
	return best, true
}

func pickBest(entries []*Entry) *Entry {
	best := entries[0]
	for _, e := range entries[1:] {
		if e.Priority > best.Priority ||
			(e.Priority == best.Priority && e.seq < best.seq) {
			best = e
		}
	}
	return best
}
