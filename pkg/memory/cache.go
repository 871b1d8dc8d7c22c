package memory

import (
	"container/list"
	"sync"
	"time"

	"github.com/maestro-ai/maestro/pkg/models"
)

// cacheEntry holds a cached record with a timestamp for TTL expiration.
type cacheEntry struct {
	recordID string
	record   models.MemoryRecord
	storedAt time.Time
}

// Cache is a thread-safe LRU record cache with TTL expiration, keyed by
// record id. Expired entries are cleaned up lazily on Get; eviction removes
// the least recently used entry when capacity is reached. The cache is a
// performance layer only; the repository behaves identically without it.
type Cache struct {
	mu      sync.Mutex
	size    int
	ttl     time.Duration
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

// NewCache creates a cache holding up to size records for at most ttl.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 256
	}
	return &Cache{
		size:    size,
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns a cached record if present and not expired.
func (c *Cache) Get(recordID string) (models.MemoryRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[recordID]
	if !ok {
		return models.MemoryRecord{}, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.ttl > 0 && time.Since(entry.storedAt) > c.ttl {
		c.order.Remove(elem)
		delete(c.entries, recordID)
		return models.MemoryRecord{}, false
	}
	c.order.MoveToFront(elem)
	return entry.record.Clone(), true
}

// Set stores a record, evicting the least recently used entry when full.
func (c *Cache) Set(record models.MemoryRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := record.Clone()
	if elem, ok := c.entries[record.RecordID]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.record = stored
		entry.storedAt = time.Now()
		c.order.MoveToFront(elem)
		return
	}

	for len(c.entries) >= c.size {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).recordID)
	}

	elem := c.order.PushFront(&cacheEntry{
		recordID: record.RecordID,
		record:   stored,
		storedAt: time.Now(),
	})
	c.entries[record.RecordID] = elem
}

// Invalidate drops the entry for recordID, if any.
func (c *Cache) Invalidate(recordID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[recordID]; ok {
		c.order.Remove(elem)
		delete(c.entries, recordID)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
