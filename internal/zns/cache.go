package zns

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entryOverhead is the fixed per-entry byte cost added on top of the sum of
// a DomainData's owned strings, so entry size accounts for bookkeeping
// overhead rather than only the string payload.
const entryOverhead = 128

// cacheEntry is the value stored in the cache; it owns a deep copy of the
// DomainData it wraps.
type cacheEntry struct {
	data         *DomainData
	cachedAt     time.Time
	expiresAt    time.Time
	lastAccessed time.Time
	hitCount     uint64
	source       ResolutionSource
	sizeBytes    int
}

// CacheStatistics is the snapshot returned by Cache.Stats.
type CacheStatistics struct {
	Entries           int
	CurrentMemoryBytes int64
	MaxMemoryBytes     int64
	Hits               uint64
	Misses             uint64
	Expirations        uint64
	Evictions          uint64
	Puts               uint64
}

// capacityExhaustedError is returned by Put when a single entry alone exceeds
// the cache's byte budget; this is the only Put failure mode. Callers detect
// it with IsCapacityExhausted.
type capacityExhaustedError struct{ size, max int }

func (e *capacityExhaustedError) Error() string { return "capacity_exhausted" }

// IsCapacityExhausted reports whether err was returned because a single
// entry alone exceeded the cache's memory budget.
func IsCapacityExhausted(err error) bool {
	_, ok := err.(*capacityExhaustedError)
	return ok
}

// Cache is the bounded TTL/LRU domain-data cache. It layers byte-budget and
// tie-break eviction rules on top of hashicorp/golang-lru's recency-ordered
// map, which supplies the baseline "touched domain becomes
// most-recently-used" behaviour.
type Cache struct {
	mu sync.Mutex

	store *lru.Cache[string, *cacheEntry]

	maxEntries     int
	maxMemoryBytes int64
	defaultTTL     time.Duration
	minTTL         time.Duration
	maxTTL         time.Duration
	cleanupEvery   time.Duration

	currentMemoryBytes int64
	lastCleanup        time.Time

	hits, misses, expirations, evictions, puts uint64
}

// CacheConfig carries the Cache configuration block.
type CacheConfig struct {
	MaxEntries        int
	MaxMemoryBytes    int64
	DefaultTTL        time.Duration
	MinTTL            time.Duration
	MaxTTL            time.Duration
	CleanupInterval   time.Duration
}

// NewCache builds a Cache from cfg. maxEntries sizes the underlying LRU
// store; Put evicts by this package's own rules before the store is full,
// and bytes and TTL rules are enforced here too.
func NewCache(cfg CacheConfig) *Cache {
	c := &Cache{
		maxEntries:     cfg.MaxEntries,
		maxMemoryBytes: cfg.MaxMemoryBytes,
		defaultTTL:     cfg.DefaultTTL,
		minTTL:         cfg.MinTTL,
		maxTTL:         cfg.MaxTTL,
		cleanupEvery:   cfg.CleanupInterval,
		lastCleanup:    time.Now(),
	}
	store, err := lru.New[string, *cacheEntry](maxInt(cfg.MaxEntries, 1))
	if err != nil {
		// only possible if maxEntries <= 0, which maxInt above prevents
		panic(err)
	}
	c.store = store
	return c
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// clampTTL computes the effective TTL: clamp(requested ?? default, min,
// max).
func (c *Cache) clampTTL(requested *uint32) time.Duration {
	var ttl time.Duration
	if requested != nil {
		ttl = time.Duration(*requested) * time.Second
	} else {
		ttl = c.defaultTTL
	}
	if ttl < c.minTTL {
		ttl = c.minTTL
	}
	if ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	return ttl
}

func entrySize(d *DomainData) int {
	size := entryOverhead + len(d.Domain) + len(d.Owner) + len(d.ContractAddress)
	size += len(d.Metadata.Registrar) + len(d.Metadata.Description) + len(d.Metadata.Avatar) + len(d.Metadata.Website)
	for _, t := range d.Metadata.Tags {
		size += len(t)
	}
	for _, r := range d.Records {
		size += len(r.Name) + len(r.Value) + len(r.Target) + len(r.Signature)
	}
	return size
}

// Get returns the cached DomainData for domain if present and unexpired. An
// expired entry is removed in-band and counted as an expiration, not a miss.
func (c *Cache) Get(domain string) (*DomainData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeCleanupLocked()

	entry, ok := c.store.Get(domain)
	if !ok {
		c.misses++
		return nil, false
	}
	now := time.Now()
	if now.After(entry.expiresAt) || now.Equal(entry.expiresAt) {
		c.removeLocked(domain)
		c.expirations++
		return nil, false
	}
	entry.lastAccessed = now
	entry.hitCount++
	c.hits++
	return entry.data.Clone(), true
}

// Put inserts domainData into the cache, evicting entries as needed to stay
// within the memory and entry budgets. The entry is deep-copied; any prior
// entry for the same domain is dropped first and its memory released.
func (c *Cache) Put(domainData *DomainData, requestedTTL *uint32, source ResolutionSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	clone := domainData.Clone()
	size := entrySize(clone)
	if int64(size) > c.maxMemoryBytes {
		return &capacityExhaustedError{size: size, max: int(c.maxMemoryBytes)}
	}

	c.removeLocked(clone.Domain)

	for c.currentMemoryBytes+int64(size) > c.maxMemoryBytes && c.store.Len() > 0 {
		c.evictOneLocked()
	}

	now := time.Now()
	ttl := c.clampTTL(requestedTTL)
	entry := &cacheEntry{
		data:         clone,
		cachedAt:     now,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
		source:       source,
		sizeBytes:    size,
	}
	// free a slot first so the library's own count-based eviction never
	// fires: evictOneLocked releases the victim's bytes and counts the
	// eviction, which the library's silent eviction would not.
	for c.store.Len() >= maxInt(c.maxEntries, 1) {
		c.evictOneLocked()
	}
	c.store.Add(clone.Domain, entry)
	c.currentMemoryBytes += int64(size)
	c.puts++
	return nil
}

// Remove deletes domain's entry if present, returning whether it existed.
func (c *Cache) Remove(domain string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(domain)
}

func (c *Cache) removeLocked(domain string) bool {
	entry, ok := c.store.Peek(domain)
	if !ok {
		return false
	}
	c.store.Remove(domain)
	c.currentMemoryBytes -= int64(entry.sizeBytes)
	if c.currentMemoryBytes < 0 {
		c.currentMemoryBytes = 0
	}
	return true
}

// Clear empties the cache entirely.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Purge()
	c.currentMemoryBytes = 0
}

// CleanupExpired removes every expired entry and returns the count removed.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanupExpiredLocked()
}

func (c *Cache) cleanupExpiredLocked() int {
	now := time.Now()
	var expired []string
	for _, k := range c.store.Keys() {
		entry, ok := c.store.Peek(k)
		if ok && !now.Before(entry.expiresAt) {
			expired = append(expired, k)
		}
	}
	for _, k := range expired {
		c.removeLocked(k)
		c.expirations++
	}
	c.lastCleanup = now
	return len(expired)
}

func (c *Cache) maybeCleanupLocked() {
	if c.cleanupEvery <= 0 {
		return
	}
	if time.Since(c.lastCleanup) >= c.cleanupEvery {
		c.cleanupExpiredLocked()
	}
}

// evictOneLocked removes one entry chosen by the LRU/tie-break rule:
// least-recently-used first; on a last_accessed tie, smaller expires_at
// evicts first; then larger size_bytes. The library's Keys() gives
// recency order, but ties on last_accessed are resolved by scanning every
// current entry rather than trusting insertion order for the tie group,
// since the library does not expose that distinction.
func (c *Cache) evictOneLocked() {
	keys := c.store.Keys()
	if len(keys) == 0 {
		return
	}
	var oldest time.Time
	first := true
	for _, k := range keys {
		e, ok := c.store.Peek(k)
		if !ok {
			continue
		}
		if first || e.lastAccessed.Before(oldest) {
			oldest = e.lastAccessed
			first = false
		}
	}

	var victim string
	var victimEntry *cacheEntry
	for _, k := range keys {
		e, ok := c.store.Peek(k)
		if !ok || !e.lastAccessed.Equal(oldest) {
			continue
		}
		if victimEntry == nil {
			victim, victimEntry = k, e
			continue
		}
		if e.expiresAt.Before(victimEntry.expiresAt) {
			victim, victimEntry = k, e
			continue
		}
		if e.expiresAt.Equal(victimEntry.expiresAt) && e.sizeBytes > victimEntry.sizeBytes {
			victim, victimEntry = k, e
		}
	}
	if victimEntry != nil {
		c.removeLocked(victim)
		c.evictions++
	}
}

// Stats returns a snapshot of the cache's counters and current usage.
func (c *Cache) Stats() CacheStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStatistics{
		Entries:            c.store.Len(),
		CurrentMemoryBytes: c.currentMemoryBytes,
		MaxMemoryBytes:     c.maxMemoryBytes,
		Hits:               c.hits,
		Misses:             c.misses,
		Expirations:        c.expirations,
		Evictions:          c.evictions,
		Puts:               c.puts,
	}
}
