// Package cache memoizes (query, context) -> result. Context need not
// match exactly: absent an exact key, a Jaccard similarity comparison over
// context attribute sets against entries for the same query may still
// grant a hit — the caller decides the threshold.
package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"mindgraph/internal/logging"
)

// Config bounds the cache.
type Config struct {
	MaxEntries  int
	MaxMemoryMB int
	TTL         time.Duration
	// SimilarityThreshold is the minimum Jaccard similarity for a
	// non-exact context hit (default 0.8).
	SimilarityThreshold float64
}

// DefaultConfig returns the default cache bounds.
func DefaultConfig() Config {
	return Config{
		MaxEntries:          500,
		MaxMemoryMB:         64,
		TTL:                 5 * time.Minute,
		SimilarityThreshold: 0.8,
	}
}

type entry struct {
	queryKey   string
	digest     string
	attrs      map[string]struct{}
	value      interface{}
	mentions   []string // node ids and paths the result touches
	size       int      // approximate serialized bytes
	storedAt   time.Time
	lastAccess time.Time
	hitCount   int
}

// Stats is the cache's read-only statistics surface.
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRate       float64 `json:"hitRate"`
	TotalEntries  int     `json:"totalEntries"`
	MemoryBytes   int64   `json:"memoryBytes"`
	Evictions     int64   `json:"evictions"`
	Expirations   int64   `json:"expirations"`
	Invalidations int64   `json:"invalidations"`
}

// Cache is a bounded LRU+TTL result cache with approximate context
// matching.
type Cache struct {
	mu sync.Mutex

	config  Config
	entries map[string]*entry   // exact key -> entry
	byQuery map[string][]*entry // normalized query -> entries

	memoryBytes   int64
	hits          int64
	misses        int64
	evictions     int64
	expirations   int64
	invalidations int64

	logger *logging.Logger
	now    func() time.Time // injectable clock for TTL tests
}

// New creates a cache with the given bounds.
func New(config Config, logger *logging.Logger) *Cache {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 500
	}
	if config.MaxMemoryMB <= 0 {
		config.MaxMemoryMB = 64
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = 0.8
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Cache{
		config:  config,
		entries: make(map[string]*entry),
		byQuery: make(map[string][]*entry),
		logger:  logger,
		now:     time.Now,
	}
}

func exactKey(queryKey, digest string) string {
	return queryKey + "\x00" + digest
}

// Get looks up a cached result. An exact (query, context) key is always a
// hit; otherwise the most similar entry for the same query wins if its
// context similarity clears the threshold.
func (c *Cache) Get(query string, context map[string]string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	queryKey := NormalizeQuery(query)
	digest := ContextDigest(context)
	now := c.now()

	if e, ok := c.entries[exactKey(queryKey, digest)]; ok {
		if c.expired(e, now) {
			c.removeEntry(e)
			c.expirations++
			c.misses++
			return nil, false
		}
		e.lastAccess = now
		e.hitCount++
		c.hits++
		return e.value, true
	}

	// Approximate hit: same normalized query, similar enough context.
	attrs := attributeSet(context)
	var best *entry
	bestSim := 0.0
	for _, e := range c.byQuery[queryKey] {
		if c.expired(e, now) {
			continue
		}
		if sim := jaccard(attrs, e.attrs); sim > bestSim {
			bestSim = sim
			best = e
		}
	}
	if best != nil && bestSim >= c.config.SimilarityThreshold {
		best.lastAccess = now
		best.hitCount++
		c.hits++
		c.logger.Debug("Cache hit by context similarity", map[string]interface{}{
			"query": queryKey, "similarity": bestSim,
		})
		return best.value, true
	}

	c.misses++
	return nil, false
}

// Set stores a result. mentions lists the node ids and paths the result
// touches, so Invalidate can find it after a graph mutation.
func (c *Cache) Set(query string, context map[string]string, value interface{}, mentions []string) {
	size := approximateSize(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	queryKey := NormalizeQuery(query)
	digest := ContextDigest(context)
	key := exactKey(queryKey, digest)
	now := c.now()

	if old, ok := c.entries[key]; ok {
		c.removeEntry(old)
	}

	e := &entry{
		queryKey:   queryKey,
		digest:     digest,
		attrs:      attributeSet(context),
		value:      value,
		mentions:   append([]string(nil), mentions...),
		size:       size,
		storedAt:   now,
		lastAccess: now,
	}
	c.entries[key] = e
	c.byQuery[queryKey] = append(c.byQuery[queryKey], e)
	c.memoryBytes += int64(size)

	c.enforceBounds()
}

// enforceBounds evicts until both the entry and memory budgets hold.
// Victims are least-recently-used; ties break toward the lowest hit count.
func (c *Cache) enforceBounds() {
	maxBytes := int64(c.config.MaxMemoryMB) * 1024 * 1024
	for len(c.entries) > c.config.MaxEntries || c.memoryBytes > maxBytes {
		victim := c.pickVictim()
		if victim == nil {
			return
		}
		c.removeEntry(victim)
		c.evictions++
	}
}

func (c *Cache) pickVictim() *entry {
	var victim *entry
	for _, e := range c.entries {
		if victim == nil {
			victim = e
			continue
		}
		if e.lastAccess.Before(victim.lastAccess) {
			victim = e
		} else if e.lastAccess.Equal(victim.lastAccess) && e.hitCount < victim.hitCount {
			victim = e
		}
	}
	return victim
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.storedAt) > c.config.TTL
}

func (c *Cache) removeEntry(e *entry) {
	delete(c.entries, exactKey(e.queryKey, e.digest))
	peers := c.byQuery[e.queryKey]
	for i, p := range peers {
		if p == e {
			c.byQuery[e.queryKey] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	if len(c.byQuery[e.queryKey]) == 0 {
		delete(c.byQuery, e.queryKey)
	}
	c.memoryBytes -= int64(e.size)
}

// Invalidate removes every entry whose result mentions one of the given
// node ids or paths. Keys may be doublestar globs (`src/auth/**`).
// Returns the number of entries removed.
func (c *Cache) Invalidate(keys []string) int {
	if len(keys) == 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var victims []*entry
	for _, e := range c.entries {
		if mentionsAny(e.mentions, keys) {
			victims = append(victims, e)
		}
	}
	for _, e := range victims {
		c.removeEntry(e)
	}
	c.invalidations += int64(len(victims))

	if len(victims) > 0 {
		c.logger.Debug("Invalidated cache entries", map[string]interface{}{
			"count": len(victims), "keys": len(keys),
		})
	}
	return len(victims)
}

func mentionsAny(mentions, keys []string) bool {
	for _, key := range keys {
		isGlob := containsAny(key, "*?[{") && doublestar.ValidatePattern(key)
		for _, m := range mentions {
			if m == key {
				return true
			}
			if isGlob {
				if ok, _ := doublestar.Match(key, m); ok {
					return true
				}
			}
		}
	}
	return false
}

func containsAny(s, chars string) bool {
	for _, c := range chars {
		for _, r := range s {
			if r == c {
				return true
			}
		}
	}
	return false
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.byQuery = make(map[string][]*entry)
	c.memoryBytes = 0
}

// EvictExpired removes every TTL-expired entry. Called by background
// maintenance; Get also drops expired entries lazily.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var victims []*entry
	for _, e := range c.entries {
		if c.expired(e, now) {
			victims = append(victims, e)
		}
	}
	for _, e := range victims {
		c.removeEntry(e)
	}
	c.expirations += int64(len(victims))
	return len(victims)
}

// GetStats returns a snapshot of cache statistics.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:          c.hits,
		Misses:        c.misses,
		HitRate:       rate,
		TotalEntries:  len(c.entries),
		MemoryBytes:   c.memoryBytes,
		Evictions:     c.evictions,
		Expirations:   c.expirations,
		Invalidations: c.invalidations,
	}
}

// approximateSize estimates the serialized size of a cached value.
func approximateSize(value interface{}) int {
	data, err := json.Marshal(value)
	if err != nil {
		return 1024
	}
	return len(data)
}
