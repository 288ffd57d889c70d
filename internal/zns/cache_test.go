package zns

import (
	"testing"
	"time"
)

func newTestCache(maxEntries int, maxBytes int64) *Cache {
	return NewCache(CacheConfig{
		MaxEntries:      maxEntries,
		MaxMemoryBytes:  maxBytes,
		DefaultTTL:      time.Minute,
		MinTTL:          time.Second,
		MaxTTL:          time.Hour,
		CleanupInterval: 0,
	})
}

func domainData(domain string) *DomainData {
	return &DomainData{
		Domain:      domain,
		Owner:       "0xowner",
		Records:     []Record{{Type: RecordA, Name: domain, Value: "1.1.1.1", TTL: 60}},
		LastUpdated: time.Now(),
	}
}

func TestCachePutGetRoundTrip(t *testing.T) {
	c := newTestCache(10, 1<<20)

	if err := c.Put(domainData("alice.ghost"), nil, SourceZNSNative); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := c.Get("alice.ghost")
	if !ok {
		t.Fatalf("expected a cache hit for alice.ghost")
	}
	if got.Domain != "alice.ghost" {
		t.Fatalf("got domain %q, want alice.ghost", got.Domain)
	}

	if _, ok := c.Get("nobody.ghost"); ok {
		t.Fatalf("expected a cache miss for an unstored domain")
	}
}

func TestCacheTTLClampBoundaries(t *testing.T) {
	c := newTestCache(10, 1<<20)

	tiny := uint32(0)
	huge := uint32(1000000)

	if err := c.Put(domainData("short.ghost"), &tiny, SourceZNSNative); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	entry, ok := c.store.Peek("short.ghost")
	if !ok {
		t.Fatalf("expected short.ghost to be stored")
	}
	if got := entry.expiresAt.Sub(entry.cachedAt); got != c.minTTL {
		t.Fatalf("requested TTL below min should clamp to min: got %v, want %v", got, c.minTTL)
	}

	if err := c.Put(domainData("long.ghost"), &huge, SourceZNSNative); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	entry, ok = c.store.Peek("long.ghost")
	if !ok {
		t.Fatalf("expected long.ghost to be stored")
	}
	if got := entry.expiresAt.Sub(entry.cachedAt); got != c.maxTTL {
		t.Fatalf("requested TTL above max should clamp to max: got %v, want %v", got, c.maxTTL)
	}
}

func TestCacheExpiryIsTreatedAsMiss(t *testing.T) {
	c := newTestCache(10, 1<<20)
	ttl := uint32(0) // clamps to minTTL (1s), but we force it in the past below

	if err := c.Put(domainData("stale.ghost"), &ttl, SourceZNSNative); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	entry, _ := c.store.Peek("stale.ghost")
	entry.expiresAt = time.Now().Add(-time.Second)

	if _, ok := c.Get("stale.ghost"); ok {
		t.Fatalf("expired entry should not be returned")
	}
	stats := c.Stats()
	if stats.Expirations != 1 {
		t.Fatalf("expected 1 expiration to be counted, got %d", stats.Expirations)
	}
}

func TestCachePutCapacityExhausted(t *testing.T) {
	c := newTestCache(10, 8) // smaller than any real entry's overhead

	err := c.Put(domainData("alice.ghost"), nil, SourceZNSNative)
	if err == nil {
		t.Fatalf("expected capacity_exhausted error")
	}
	if !IsCapacityExhausted(err) {
		t.Fatalf("expected IsCapacityExhausted(err) to be true, got %v", err)
	}
}

func TestCacheEvictionTieBreakPrefersSmallerExpiry(t *testing.T) {
	c := newTestCache(10, 1<<20)

	now := time.Now()
	if err := c.Put(domainData("a.ghost"), nil, SourceZNSNative); err != nil {
		t.Fatalf("Put a failed: %v", err)
	}
	if err := c.Put(domainData("b.ghost"), nil, SourceZNSNative); err != nil {
		t.Fatalf("Put b failed: %v", err)
	}

	// Force both entries to the same last_accessed value so the tie-break
	// rule (smaller expires_at evicts first) is what decides the outcome.
	entryA, _ := c.store.Peek("a.ghost")
	entryB, _ := c.store.Peek("b.ghost")
	entryA.lastAccessed = now
	entryB.lastAccessed = now
	entryA.expiresAt = now.Add(time.Hour)
	entryB.expiresAt = now.Add(time.Minute) // expires sooner, should be evicted first

	c.evictOneLocked()

	if _, ok := c.store.Peek("b.ghost"); ok {
		t.Fatalf("expected b.ghost (earlier expiry) to be evicted first")
	}
	if _, ok := c.store.Peek("a.ghost"); !ok {
		t.Fatalf("expected a.ghost to survive eviction")
	}
}

func TestCacheMemoryBudgetEnforced(t *testing.T) {
	entry := domainData("alice.ghost")
	budget := int64(entrySize(entry)) + 10 // room for roughly one entry

	c := newTestCache(100, budget)

	for i := 0; i < 5; i++ {
		d := domainData("domain" + string(rune('a'+i)) + ".ghost")
		if err := c.Put(d, nil, SourceZNSNative); err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
		if c.currentMemoryBytes > c.maxMemoryBytes {
			t.Fatalf("current_memory_bytes (%d) exceeded max_memory_bytes (%d) after put %d", c.currentMemoryBytes, c.maxMemoryBytes, i)
		}
	}
}

func TestCacheClear(t *testing.T) {
	c := newTestCache(10, 1<<20)
	_ = c.Put(domainData("alice.ghost"), nil, SourceZNSNative)
	c.Clear()
	if _, ok := c.Get("alice.ghost"); ok {
		t.Fatalf("expected cache to be empty after Clear")
	}
}
