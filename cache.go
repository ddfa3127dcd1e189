package markup

import (
	"container/list"
	"crypto/sha256"
	"sync"
)

// ----------------------------- Compilation cache ----------------------------

// DefaultCacheSize bounds a Cache created with a non-positive size.
const DefaultCacheSize = 500

// CacheKey identifies template source by content.
type CacheKey [sha256.Size]byte

// KeyOf returns the cache key of src.
func KeyOf(src string) CacheKey { return sha256.Sum256([]byte(src)) }

// Cache keeps compiled units keyed by the SHA-256 of their source, evicting
// the least recently used entry once full. The parse options are fixed per
// cache, so equal source always compiles to an equivalent Set.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	opts    []ParseOption
	entries map[CacheKey]*list.Element
	lru     *list.List // front is most recently used
}

type cacheEntry struct {
	key CacheKey
	set *Set
}

// NewCache returns a cache holding at most maxSize units compiled with opts.
func NewCache(maxSize int, opts ...ParseOption) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &Cache{
		maxSize: maxSize,
		opts:    opts,
		entries: make(map[CacheKey]*list.Element),
		lru:     list.New(),
	}
}

// Lookup returns the unit cached under key.
func (c *Cache) Lookup(key CacheKey) (*Set, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(el)
	return el.Value.(*cacheEntry).set, true
}

// Insert stores set under key, replacing any previous entry.
func (c *Cache) Insert(key CacheKey, set *Set) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).set = set
		c.lru.MoveToFront(el)
		return
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, set: set})
	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		log().Debug().Int("size", c.lru.Len()).Msg("cache evict")
	}
}

// Compile returns the cached unit for src, parsing it on a miss. Failed
// parses are not cached.
func (c *Cache) Compile(src string) (*Set, error) {
	key := KeyOf(src)
	if set, ok := c.Lookup(key); ok {
		log().Debug().Hex("key", key[:8]).Msg("cache hit")
		return set, nil
	}
	log().Debug().Hex("key", key[:8]).Msg("cache miss")
	set, err := Parse(src, c.opts...)
	if err != nil {
		return nil, err
	}
	c.Insert(key, set)
	return set, nil
}

// Len reports the number of cached units.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[CacheKey]*list.Element)
	c.lru.Init()
}
