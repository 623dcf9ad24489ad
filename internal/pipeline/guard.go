package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryGuard is an in-process NotificationGuard. It remembers up to
// maxEntries keys for ttl each, evicting the least recently acquired first.
// State is lost on restart; use the Redis guard when runs span processes.
type MemoryGuard struct {
	ttl        time.Duration
	maxEntries int
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[string]*guardEntry
	head    *guardEntry // most recently acquired
	tail    *guardEntry // least recently acquired
}

type guardEntry struct {
	key     string
	expires time.Time
	prev    *guardEntry
	next    *guardEntry
}

// NewMemoryGuard creates a guard. A nil clock uses real time.
func NewMemoryGuard(ttl time.Duration, maxEntries int, clk clockwork.Clock) *MemoryGuard {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &MemoryGuard{
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clk,
		entries:    make(map[string]*guardEntry),
	}
}

// Acquire returns true the first time key is seen within its ttl.
func (g *MemoryGuard) Acquire(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if e, ok := g.entries[key]; ok {
		if now.Before(e.expires) {
			return false, nil
		}
		g.remove(e)
		delete(g.entries, key)
	}

	e := &guardEntry{key: key, expires: now.Add(g.ttl)}
	g.entries[key] = e
	g.addToFront(e)

	if len(g.entries) > g.maxEntries {
		g.evictTail()
	}
	return true, nil
}

// Release forgets key so a later Acquire succeeds. Used when delivery fails.
func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entries[key]; ok {
		g.remove(e)
		delete(g.entries, key)
	}
	return nil
}

func (g *MemoryGuard) addToFront(e *guardEntry) {
	e.next = g.head
	e.prev = nil
	if g.head != nil {
		g.head.prev = e
	}
	g.head = e
	if g.tail == nil {
		g.tail = e
	}
}

func (g *MemoryGuard) remove(e *guardEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		g.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		g.tail = e.prev
	}
}

func (g *MemoryGuard) evictTail() {
	if g.tail == nil {
		return
	}
	delete(g.entries, g.tail.key)
	g.remove(g.tail)
}
