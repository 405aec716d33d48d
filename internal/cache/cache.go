// Package cache keeps per-session lookups off the storage hot path.
package cache

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/samber/lo"
)

// Map is a map guarded by a read/write mutex. The zero value is ready to use.
type Map[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func (c *Map[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *Map[K, V]) Set(key K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[K]V)
	}
	c.m[key] = v
}

func (c *Map[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

func (c *Map[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Reset drops every entry.
func (c *Map[K, V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = nil
}

// Values returns the entries in no particular order.
func (c *Map[K, V]) Values() []V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Values(c.m)
}

// CarCache holds the cars of the running session so the hot path never has
// to ask a storage backend who a car is.
type CarCache struct {
	Map[uint, core.CarInfo]
}

func NewCarCache() *CarCache {
	return &CarCache{}
}

// Add stores car under its ID, replacing an earlier entry.
func (c *CarCache) Add(car core.CarInfo) {
	c.Set(car.ID, car)
}

// All returns the cached cars ordered by ID.
func (c *CarCache) All() []core.CarInfo {
	cars := c.Values()
	slices.SortFunc(cars, func(a, b core.CarInfo) int { return cmp.Compare(a.ID, b.ID) })
	return cars
}

// RowCache maps car IDs to the primary keys a database backend assigned
// them in the current session.
type RowCache = Map[uint, uint]

func NewRowCache() *RowCache {
	return &RowCache{}
}

// Counter is a concurrency-safe tally.
type Counter struct {
	v atomic.Int64
}

func (c *Counter) Value() int { return int(c.v.Load()) }
func (c *Counter) Set(v int)  { c.v.Store(int64(v)) }
func (c *Counter) Inc()       { c.v.Add(1) }
