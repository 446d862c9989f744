package memtier

import (
	"container/list"
	"sync"

	"github.com/google/uuid"
)

// defaultCacheCapacity is the hot-cache size used when newLRU is given a
// non-positive capacity.
const defaultCacheCapacity = 256

// lru is a small fixed-capacity least-recently-used cache in front of the
// bbolt-backed secondary index, tracking hit/miss counts for diagnostics.
type lru struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[uuid.UUID]*list.Element
	hits     uint64
	misses   uint64
}

type lruEntry struct {
	key   uuid.UUID
	value indexedMeta
}

func newLRU(capacity int) *lru {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &lru{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[uuid.UUID]*list.Element),
	}
}

func (c *lru) get(key uuid.UUID) (indexedMeta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return indexedMeta{}, false
	}
	c.hits++
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry).value, true
}

func (c *lru) put(key uuid.UUID, value indexedMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).value = value
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&lruEntry{key: key, value: value})
	c.items[key] = el

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
}

func (c *lru) remove(key uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}
