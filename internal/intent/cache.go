package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCacheSize is the capacity used when NewCache receives size <= 0.
const DefaultCacheSize = 100

// StoredIntent is one persisted cache entry.
type StoredIntent struct {
	Key       string
	Record    Record
	CreatedAt time.Time
}

// Store is the durable backing for a [Cache]. Implementations live in
// internal/store.
type Store interface {
	// LoadIntents returns every stored entry ordered oldest first.
	LoadIntents(ctx context.Context) ([]StoredIntent, error)
	SaveIntent(ctx context.Context, entry StoredIntent) error
	DeleteIntent(ctx context.Context, key string) error
	ClearIntents(ctx context.Context) error
}

// CacheStats is a point-in-time view of a [Cache].
type CacheStats struct {
	Size     int   `json:"size"`
	Capacity int   `json:"capacity"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
}

type cacheEntry struct {
	rec      Record
	accesses int
	created  time.Time
}

// CacheOption configures a [Cache].
type CacheOption func(*Cache)

// WithStore writes every insert, eviction and reset through to s.
func WithStore(s Store) CacheOption {
	return func(c *Cache) { c.store = s }
}

// Cache maps normalised utterance text to a classified [Record].
//
// The cache holds at most its capacity; when full, inserting a new key evicts
// the oldest-inserted key (FIFO). Reads never change eviction order. Records
// are cloned on the way in and on the way out.
//
// All methods are safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, *cacheEntry]
	capacity int
	hits     int64
	misses   int64
	evicted  []string
	store    Store
}

// NewCache creates a Cache holding at most size entries.
func NewCache(size int, opts ...CacheOption) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c := &Cache{capacity: size}
	// NewLRU only fails for size <= 0.
	c.lru, _ = simplelru.NewLRU(size, func(key string, _ *cacheEntry) {
		c.evicted = append(c.evicted, key)
	})
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the record cached for text and counts a hit. ok is false on a
// miss, which is counted as well.
func (c *Cache) Get(text string) (Record, bool) {
	key := Normalize(text)
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	if !ok {
		c.misses++
		return Record{}, false
	}
	c.hits++
	e.accesses++
	return e.rec.Clone(), true
}

// Put caches rec under the normalised form of text. Empty keys are ignored.
// Re-inserting an existing key replaces its record.
func (c *Cache) Put(ctx context.Context, text string, rec Record) {
	key := Normalize(text)
	if key == "" {
		return
	}
	entry := &cacheEntry{rec: rec.Clone(), created: time.Now()}

	c.mu.Lock()
	c.lru.Add(key, entry)
	evicted := c.evicted
	c.evicted = nil
	store := c.store
	c.mu.Unlock()

	if store == nil {
		return
	}
	for _, k := range evicted {
		if err := store.DeleteIntent(ctx, k); err != nil {
			slog.Warn("intent cache: delete evicted entry", "key", k, "err", err)
		}
	}
	if err := store.SaveIntent(ctx, StoredIntent{Key: key, Record: entry.rec.Clone(), CreatedAt: entry.created}); err != nil {
		slog.Warn("intent cache: persist entry", "key", key, "err", err)
	}
}

// Accesses returns how many times the entry for text has been read.
func (c *Cache) Accesses(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.lru.Peek(Normalize(text)); ok {
		return e.accesses
	}
	return 0
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns the cached keys, oldest first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Stats returns the current size and hit counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Size: c.lru.Len(), Capacity: c.capacity, Hits: c.hits, Misses: c.misses}
}

// Reset empties the cache, zeroes the counters and clears the backing store.
func (c *Cache) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.lru.Purge()
	c.evicted = nil
	c.hits, c.misses = 0, 0
	store := c.store
	c.mu.Unlock()

	if store == nil {
		return nil
	}
	return store.ClearIntents(ctx)
}

// Load fills the cache from the backing store. Only the newest entries that
// fit the capacity are kept; older ones are deleted from the store.
func (c *Cache) Load(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	entries, err := c.store.LoadIntents(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	for _, e := range entries {
		c.lru.Add(e.Key, &cacheEntry{rec: e.Record.Clone(), created: e.CreatedAt})
	}
	evicted := c.evicted
	c.evicted = nil
	n := c.lru.Len()
	c.mu.Unlock()

	for _, k := range evicted {
		if err := c.store.DeleteIntent(ctx, k); err != nil {
			slog.Warn("intent cache: prune stale entry", "key", k, "err", err)
		}
	}
	return n, nil
}

// MarshalRecord encodes rec for persistence.
func MarshalRecord(rec Record) ([]byte, error) {
	if rec.Parameters == nil {
		rec.Parameters = map[string]any{}
	}
	return json.Marshal(rec)
}

// UnmarshalRecord decodes a record written by [MarshalRecord].
func UnmarshalRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, err
	}
	if rec.Parameters == nil {
		rec.Parameters = map[string]any{}
	}
	return rec, nil
}
