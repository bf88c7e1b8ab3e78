package search

import (
	"container/list"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/bow"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
)

// CacheKey represents a unique key for caching query results
type CacheKey string

// LRUCache implements a thread-safe LRU (Least Recently Used) cache
type LRUCache[V any] struct {
	capacity int
	ttl      time.Duration // Time-to-live for cache entries

	mu    sync.Mutex
	cache map[CacheKey]*list.Element
	lru   *list.List
	now   func() time.Time

	// Statistics
	hits   int64
	misses int64
}

// cacheEntry represents a single entry in the cache
type cacheEntry[V any] struct {
	key       CacheKey
	value     V
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache with the given capacity
// capacity: maximum number of items to store
// ttl: time-to-live for entries (0 = no expiration)
func NewLRUCache[V any](capacity int, ttl time.Duration) *LRUCache[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUCache[V]{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[CacheKey]*list.Element, capacity),
		lru:      list.New(),
		now:      time.Now,
	}
}

// Get retrieves a value from the cache
// Returns (value, true) if found, (zero, false) if not found or expired
func (c *LRUCache[V]) Get(key CacheKey) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, exists := c.cache[key]
	if !exists {
		c.misses++
		return zero, false
	}

	entry := elem.Value.(*cacheEntry[V])
	if c.ttl > 0 && c.now().After(entry.expiresAt) {
		c.removeElement(elem)
		c.misses++
		return zero, false
	}

	c.lru.MoveToFront(elem)
	c.hits++
	return entry.value, true
}

// Put adds or updates a value in the cache
func (c *LRUCache[V]) Put(key CacheKey, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.cache[key]; exists {
		entry := elem.Value.(*cacheEntry[V])
		entry.value = value
		if c.ttl > 0 {
			entry.expiresAt = c.now().Add(c.ttl)
		}
		c.lru.MoveToFront(elem)
		return
	}

	entry := &cacheEntry[V]{
		key:   key,
		value: value,
	}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}

	c.cache[key] = c.lru.PushFront(entry)

	if c.lru.Len() > c.capacity {
		c.evictOldest()
	}
}

// Invalidate removes a specific key from the cache
func (c *LRUCache[V]) Invalidate(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.cache[key]; exists {
		c.removeElement(elem)
	}
}

// Clear removes all entries and resets the statistics
func (c *LRUCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[CacheKey]*list.Element, c.capacity)
	c.lru.Init()
	c.hits = 0
	c.misses = 0
}

// Size returns the current number of items in the cache
func (c *LRUCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns cache statistics
func (c *LRUCache[V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return CacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    c.lru.Len(),
		HitRate: hitRate,
	}
}

// evictOldest removes the least recently used item
func (c *LRUCache[V]) evictOldest() {
	if elem := c.lru.Back(); elem != nil {
		c.removeElement(elem)
	}
}

// removeElement removes an element from the cache
func (c *LRUCache[V]) removeElement(elem *list.Element) {
	c.lru.Remove(elem)
	entry := elem.Value.(*cacheEntry[V])
	delete(c.cache, entry.key)
}

// CacheStats holds cache performance statistics
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// QueryKey hashes a descriptor set, the norm and the database version.
// A changed database therefore never hits stale entries.
func QueryKey(query descriptor.Matrix, norm bow.NormType, version uint64) CacheKey {
	h := sha256.New()

	binary.Write(h, binary.LittleEndian, int32(query.Kind()))
	binary.Write(h, binary.LittleEndian, int32(query.Rows()))
	binary.Write(h, binary.LittleEndian, int32(query.Cols()))

	switch m := query.(type) {
	case descriptor.Dataset[byte]:
		for i := 0; i < m.Rows(); i++ {
			h.Write(m.Row(i))
		}
	case descriptor.Dataset[float64]:
		var buf [8]byte
		for i := 0; i < m.Rows(); i++ {
			for _, v := range m.Row(i) {
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
				h.Write(buf[:])
			}
		}
	}

	binary.Write(h, binary.LittleEndian, int32(norm))
	binary.Write(h, binary.LittleEndian, version)

	return CacheKey(fmt.Sprintf("bow:%x", h.Sum(nil)[:16]))
}
