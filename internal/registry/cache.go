package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
)

// Entry is one register of a snapshot.
type Entry struct {
	Register types.Register
	Payload  types.Payload
}

// Update is sent to subscribers after every Put.
type Update struct {
	Register  types.Register
	Payload   types.Payload
	UpdatedAt time.Time
}

// Cache maps registers to finalized response frames. Put stores a private
// copy and Get hands out the stored slice, which callers must not modify.
type Cache struct {
	mu      sync.RWMutex
	entries map[types.Register]types.Payload

	listenersMu sync.RWMutex
	listeners   []chan Update
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[types.Register]types.Payload),
	}
}

// Put replaces the payload of reg.
func (c *Cache) Put(reg types.Register, payload types.Payload) {
	stored := payload.Clone()

	c.mu.Lock()
	c.entries[reg] = stored
	c.mu.Unlock()

	c.notify(Update{Register: reg, Payload: stored, UpdatedAt: time.Now()})
}

// Get returns the payload of reg.
func (c *Cache) Get(reg types.Register) (types.Payload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	payload, ok := c.entries[reg]
	return payload, ok
}

// Len returns the number of cached registers
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns all entries ordered by register.
func (c *Cache) Snapshot() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for reg, payload := range c.entries {
		out = append(out, Entry{Register: reg, Payload: payload})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Register < out[j].Register })
	return out
}

// Subscribe returns a channel receiving updates. Slow subscribers miss updates.
func (c *Cache) Subscribe() <-chan Update {
	ch := make(chan Update, 64)

	c.listenersMu.Lock()
	c.listeners = append(c.listeners, ch)
	c.listenersMu.Unlock()

	return ch
}

// Unsubscribe removes and closes ch.
func (c *Cache) Unsubscribe(ch <-chan Update) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	for i, listener := range c.listeners {
		if listener == ch {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			close(listener)
			break
		}
	}
}

func (c *Cache) notify(u Update) {
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()

	for _, listener := range c.listeners {
		select {
		case listener <- u:
		default:
			// Channel full, skip
		}
	}
}
