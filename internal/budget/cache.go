package budget

import (
	"sort"
	"sync"

	"budgetbee/internal/core"
)

// Cache maps category identifiers to their entries for the active period.
type Cache struct {
	mu      sync.RWMutex
	entries map[core.CategoryID]Entry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[core.CategoryID]Entry)}
}

// Get returns the cached entry for id.
func (c *Cache) Get(id core.CategoryID) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// Upsert merges p into the entry for id, creating it if needed, and returns
// the recomputed entry. Negative amounts are coerced to zero.
func (c *Cache) Upsert(id core.CategoryID, p Partial) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		e = Entry{CategoryID: id}
	}
	e.merge(p)
	c.entries[id] = e
	return e
}

// Clear drops every entry. Used when the active period changes.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[core.CategoryID]Entry)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a copy of all entries ordered by category identifier.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out
}
