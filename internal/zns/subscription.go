package zns

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// maxQueueEvents bounds every subscription's event queue.
const maxQueueEvents = 1000

// DomainSubscription is a client's watch over a set of domains (empty =
// wildcard) and record types (empty = all).
type DomainSubscription struct {
	ID              string
	ClientID        string
	Domains         map[string]struct{}
	RecordTypes     map[RecordType]struct{}
	IncludeMetadata bool
	CreatedAt       time.Time

	mu           sync.Mutex
	queue        []ChangeEvent
	lastActivity time.Time
}

func (s *DomainSubscription) matches(e ChangeEvent) bool {
	if len(s.Domains) > 0 {
		if _, ok := s.Domains[e.Domain]; !ok {
			return false
		}
	}
	if len(s.RecordTypes) == 0 {
		return true
	}
	for _, r := range e.NewRecords {
		if _, ok := s.RecordTypes[r.Type]; ok {
			return true
		}
	}
	return false
}

// offer appends e to the subscription's queue, dropping the oldest event
// on overflow.
func (s *DomainSubscription) offer(e ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) >= maxQueueEvents {
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, e)
	s.lastActivity = time.Now()
}

// drain returns up to max oldest events and removes them from the queue.
func (s *DomainSubscription) drain(max int) []ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max <= 0 || max > len(s.queue) {
		max = len(s.queue)
	}
	out := make([]ChangeEvent, max)
	copy(out, s.queue[:max])
	s.queue = s.queue[max:]
	s.lastActivity = time.Now()
	return out
}

// DomainSubscriptionManager is the domain-change pub/sub: an index by
// watched domain plus a wildcard bucket, with bounded per-subscriber
// queues.
type DomainSubscriptionManager struct {
	mu         sync.RWMutex
	byDomain   map[string]map[string]*DomainSubscription
	wildcard   map[string]*DomainSubscription
	all        map[string]*DomainSubscription
	nextSeq    uint64
}

// NewDomainSubscriptionManager builds an empty DomainSubscriptionManager.
func NewDomainSubscriptionManager() *DomainSubscriptionManager {
	return &DomainSubscriptionManager{
		byDomain: make(map[string]map[string]*DomainSubscription),
		wildcard: make(map[string]*DomainSubscription),
		all:      make(map[string]*DomainSubscription),
	}
}

// Count returns the number of currently active domain subscriptions, used
// by the periodic task to refresh the active_subscriptions gauge.
func (m *DomainSubscriptionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.all)
}

// nextSubscriptionID generates IDs of the form "sub_<client_id>_<monotonic>"
// from this manager's own atomic counter, so IDs never collide within one
// manager. The cache-subscription manager keeps a separate counter with the
// same ID format, so its IDs can repeat ones issued here.
func (m *DomainSubscriptionManager) nextSubscriptionID(clientID string) string {
	seq := atomic.AddUint64(&m.nextSeq, 1)
	return fmt.Sprintf("sub_%s_%s", clientID, strconv.FormatUint(seq, 10))
}

// Subscribe creates a new domain subscription and indexes it.
func (m *DomainSubscriptionManager) Subscribe(clientID string, domains []string, recordTypes []RecordType, includeMetadata bool) *DomainSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &DomainSubscription{
		ID:              m.nextSubscriptionID(clientID),
		ClientID:        clientID,
		Domains:         toSet(domains),
		RecordTypes:     toRecordTypeSet(recordTypes),
		IncludeMetadata: includeMetadata,
		CreatedAt:       time.Now(),
		lastActivity:    time.Now(),
	}

	m.all[sub.ID] = sub
	if len(domains) == 0 {
		m.wildcard[sub.ID] = sub
	} else {
		for _, d := range domains {
			if m.byDomain[d] == nil {
				m.byDomain[d] = make(map[string]*DomainSubscription)
			}
			m.byDomain[d][sub.ID] = sub
		}
	}
	return sub
}

// CancelSubscription removes id from every index it appears in.
func (m *DomainSubscriptionManager) CancelSubscription(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.all[id]
	if !ok {
		return false
	}
	delete(m.all, id)
	delete(m.wildcard, id)
	for d := range sub.Domains {
		if set, ok := m.byDomain[d]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(m.byDomain, d)
			}
		}
	}
	return true
}

// Publish delivers event to every matching subscriber: the union of
// subscribers indexed under event.Domain and the wildcard bucket, filtered
// by each subscriber's domain/record-type predicates.
func (m *DomainSubscriptionManager) Publish(event ChangeEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	deliver := func(sub *DomainSubscription) {
		if _, ok := seen[sub.ID]; ok {
			return
		}
		seen[sub.ID] = struct{}{}
		if sub.matches(event) {
			sub.offer(event)
		}
	}
	for _, sub := range m.byDomain[event.Domain] {
		deliver(sub)
	}
	for _, sub := range m.wildcard {
		deliver(sub)
	}
}

// GetEvents drains up to max events from subscription id.
func (m *DomainSubscriptionManager) GetEvents(id string, max int) ([]ChangeEvent, bool) {
	m.mu.RLock()
	sub, ok := m.all[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return sub.drain(max), true
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, i := range items {
		out[i] = struct{}{}
	}
	return out
}

func toRecordTypeSet(items []RecordType) map[RecordType]struct{} {
	out := make(map[RecordType]struct{}, len(items))
	for _, i := range items {
		out[i] = struct{}{}
	}
	return out
}

// cacheSubscription is a client's watch over a subset of cache event
// classes.
type cacheSubscription struct {
	id       string
	clientID string
	classes  map[CacheEventType]struct{}

	mu    sync.Mutex
	queue []CacheEvent
}

func (s *cacheSubscription) offer(e CacheEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) >= maxQueueEvents {
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, e)
}

func (s *cacheSubscription) drain(max int) []CacheEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max <= 0 || max > len(s.queue) {
		max = len(s.queue)
	}
	out := make([]CacheEvent, max)
	copy(out, s.queue[:max])
	s.queue = s.queue[max:]
	return out
}

// CacheSubscriptionManager is the cache-event broadcaster.
type CacheSubscriptionManager struct {
	mu      sync.RWMutex
	subs    map[string]*cacheSubscription
	nextSeq uint64
}

// NewCacheSubscriptionManager builds an empty CacheSubscriptionManager.
func NewCacheSubscriptionManager() *CacheSubscriptionManager {
	return &CacheSubscriptionManager{subs: make(map[string]*cacheSubscription)}
}

// Subscribe registers interest in the given cache event classes.
func (m *CacheSubscriptionManager) Subscribe(clientID string, hits, misses, evictions bool) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := atomic.AddUint64(&m.nextSeq, 1)
	id := fmt.Sprintf("sub_%s_%s", clientID, strconv.FormatUint(seq, 10))
	classes := make(map[CacheEventType]struct{})
	if hits {
		classes[CacheEventHit] = struct{}{}
	}
	if misses {
		classes[CacheEventMiss] = struct{}{}
	}
	if evictions {
		classes[CacheEventEviction] = struct{}{}
	}
	classes[CacheEventFlush] = struct{}{}
	m.subs[id] = &cacheSubscription{id: id, clientID: clientID, classes: classes}
	return id
}

// Cancel removes a cache subscription.
func (m *CacheSubscriptionManager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return false
	}
	delete(m.subs, id)
	return true
}

// Publish broadcasts e to every subscriber that opted into its class.
func (m *CacheSubscriptionManager) Publish(e CacheEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subs {
		if _, ok := sub.classes[e.Type]; ok {
			sub.offer(e)
		}
	}
}

// GetEvents drains up to max events from cache subscription id.
func (m *CacheSubscriptionManager) GetEvents(id string, max int) ([]CacheEvent, bool) {
	m.mu.RLock()
	sub, ok := m.subs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return sub.drain(max), true
}
