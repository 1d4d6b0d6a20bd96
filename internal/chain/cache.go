// Package chain keeps a time-to-live cache of option chains per underlying
// and coordinates scheduled and manual refreshes of it.
package chain

import (
	"sync"
	"time"

	"options-dashboard/internal/models"
)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// State is the freshness of a cache entry.
type State int

const (
	StateEmpty State = iota
	StateFresh
	StateStale
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "FRESH"
	case StateStale:
		return "STALE"
	default:
		return "EMPTY"
	}
}

// Entry is an immutable cached chain. Replacing an entry swaps the pointer,
// so readers always see a complete chain with its own timestamp.
type Entry struct {
	Underlying  models.Underlying
	Chain       models.OptionChain
	RefreshedAt time.Time
}

// Age returns how long ago the entry was fetched.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.RefreshedAt)
}

// Cache maps underlyings to their last fetched chain.
type Cache struct {
	ttl   time.Duration
	clock Clock

	mu      sync.RWMutex
	entries map[models.Underlying]*Entry
}

// NewCache creates a cache. A nil clock uses the wall clock.
func NewCache(ttl time.Duration, clock Clock) *Cache {
	if clock == nil {
		clock = SystemClock()
	}
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[models.Underlying]*Entry),
	}
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the entry for u regardless of age.
func (c *Cache) Get(u models.Underlying) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[u]
	return e, ok
}

// Fresh returns the entry for u only if it is within TTL and has rows.
func (c *Cache) Fresh(u models.Underlying) (*Entry, bool) {
	e, ok := c.Get(u)
	if !ok || len(e.Chain.Data) == 0 || e.Age(c.clock.Now()) >= c.ttl {
		return nil, false
	}
	return e, true
}

// State reports the freshness of u's entry.
func (c *Cache) State(u models.Underlying) State {
	e, ok := c.Get(u)
	switch {
	case !ok:
		return StateEmpty
	case e.Age(c.clock.Now()) < c.ttl:
		return StateFresh
	default:
		return StateStale
	}
}

// Put stores a chain for u stamped with the current time.
func (c *Cache) Put(u models.Underlying, chain models.OptionChain) *Entry {
	e := &Entry{
		Underlying:  u,
		Chain:       chain,
		RefreshedAt: c.clock.Now(),
	}
	c.mu.Lock()
	c.entries[u] = e
	c.mu.Unlock()
	return e
}

// Spot returns the cached spot price for u, if any.
func (c *Cache) Spot(u models.Underlying) (float64, bool) {
	e, ok := c.Get(u)
	if !ok {
		return 0, false
	}
	return e.Chain.SpotPrice, true
}
