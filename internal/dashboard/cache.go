package dashboard

import (
	"context"
	"sync"

	"github.com/nerrad567/posfleet-core/internal/fleet"
)

// Fetcher loads the current value of one query.
type Fetcher func(ctx context.Context) (any, error)

type entry struct {
	key   Key
	value any
	stale bool
}

// Cache holds query results by Key. It is safe for concurrent use.
type Cache struct {
	entries map[string]*entry
	mu      sync.Mutex
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Get returns the cached value for key, or calls fetch and caches its
// result when the entry is missing or stale. A failed fetch leaves the
// entry as it was.
//
// Fetches for different keys may run concurrently. Two callers racing on
// the same stale key may both fetch; the later result wins.
func (c *Cache) Get(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	id := key.String()

	c.mu.Lock()
	if e, ok := c.entries[id]; ok && !e.stale {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[id] = &entry{key: key, value: v}
	c.mu.Unlock()
	return v, nil
}

// MarkStale marks every entry of the named collections stale, whatever its
// parameters.
func (c *Cache) MarkStale(collections ...string) int {
	if len(collections) == 0 {
		return 0
	}
	want := make(map[string]bool, len(collections))
	for _, col := range collections {
		want[col] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if want[e.key.Collection] && !e.stale {
			e.stale = true
			n++
		}
	}
	return n
}

// MarkAllStale marks every entry stale.
func (c *Cache) MarkAllStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.stale = true
	}
}

// IsStale reports whether the next Get for key will fetch. Missing entries
// count as stale.
func (c *Cache) IsStale(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	return !ok || e.stale
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Apply marks stale whatever e invalidates and returns the affected
// collections. initial_status invalidates everything and returns nil.
func (c *Cache) Apply(e fleet.Event) []string {
	if e.Type == fleet.EventInitialStatus {
		c.MarkAllStale()
		return nil
	}
	cols := Invalidations[e.Type]
	c.MarkStale(cols...)
	return cols
}
