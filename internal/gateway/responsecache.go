package gateway

import (
	"hash/fnv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ResponseCache is the opaque bounded key→bytes cache the dispatcher hashes
// (path, body) into a 64-bit key and uses to short-circuit backend calls,
// with LRU eviction on a byte budget.
type ResponseCache struct {
	mu            sync.Mutex
	store         *lru.Cache[uint64, []byte]
	maxBytes      int64
	currentBytes  int64
}

// NewResponseCache builds a ResponseCache bounded by both entry count and
// total bytes.
func NewResponseCache(maxEntries int, maxBytes int64) *ResponseCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	rc := &ResponseCache{maxBytes: maxBytes}
	store, err := lru.NewWithEvict[uint64, []byte](maxEntries, rc.onEvict)
	if err != nil {
		panic(err)
	}
	rc.store = store
	return rc
}

func (rc *ResponseCache) onEvict(_ uint64, value []byte) {
	rc.currentBytes -= int64(len(value))
	if rc.currentBytes < 0 {
		rc.currentBytes = 0
	}
}

// Key hashes (path, body) into the 64-bit dispatch cache key.
func Key(path string, body []byte) uint64 {
	h := fnv.New64a()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return h.Sum64()
}

// Get returns the cached response body for key, if present.
func (rc *ResponseCache) Get(key uint64) ([]byte, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.store.Get(key)
}

// Put stores body under key, evicting by count (handled by the library)
// and by byte budget (handled here) as needed.
func (rc *ResponseCache) Put(key uint64, body []byte) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if int64(len(body)) > rc.maxBytes {
		return
	}
	for rc.currentBytes+int64(len(body)) > rc.maxBytes && rc.store.Len() > 0 {
		rc.store.RemoveOldest()
	}
	rc.store.Add(key, body)
	rc.currentBytes += int64(len(body))
}
