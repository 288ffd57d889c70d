package zns

import "testing"

func TestDomainSubscriptionFanOutDomainAndWildcard(t *testing.T) {
	m := NewDomainSubscriptionManager()

	specific := m.Subscribe("client1", []string{"alice.ghost"}, nil, false)
	wildcard := m.Subscribe("client2", nil, nil, false)
	other := m.Subscribe("client3", []string{"bob.ghost"}, nil, false)

	m.Publish(ChangeEvent{Domain: "alice.ghost", EventType: EventUpdated})

	events, ok := m.GetEvents(specific.ID, 0)
	if !ok || len(events) != 1 {
		t.Fatalf("expected the domain-specific subscriber to receive 1 event, got %d (ok=%v)", len(events), ok)
	}

	events, ok = m.GetEvents(wildcard.ID, 0)
	if !ok || len(events) != 1 {
		t.Fatalf("expected the wildcard subscriber to receive 1 event, got %d (ok=%v)", len(events), ok)
	}

	events, ok = m.GetEvents(other.ID, 0)
	if !ok || len(events) != 0 {
		t.Fatalf("expected the unrelated domain subscriber to receive 0 events, got %d (ok=%v)", len(events), ok)
	}
}

func TestDomainSubscriptionRecordTypeFilter(t *testing.T) {
	m := NewDomainSubscriptionManager()
	sub := m.Subscribe("client1", []string{"alice.ghost"}, []RecordType{RecordTXT}, false)

	m.Publish(ChangeEvent{
		Domain:     "alice.ghost",
		EventType:  EventUpdated,
		NewRecords: []Record{{Type: RecordA, Value: "1.2.3.4"}},
	})
	if events, _ := m.GetEvents(sub.ID, 0); len(events) != 0 {
		t.Fatalf("expected no delivery when no new record matches the requested type, got %d", len(events))
	}

	m.Publish(ChangeEvent{
		Domain:     "alice.ghost",
		EventType:  EventUpdated,
		NewRecords: []Record{{Type: RecordTXT, Value: "hello"}},
	})
	if events, _ := m.GetEvents(sub.ID, 0); len(events) != 1 {
		t.Fatalf("expected delivery when a new record matches the requested type, got %d", len(events))
	}
}

func TestDomainSubscriptionQueueDropsOldestOnOverflow(t *testing.T) {
	m := NewDomainSubscriptionManager()
	sub := m.Subscribe("client1", nil, nil, false)

	for i := 0; i < maxQueueEvents+10; i++ {
		m.Publish(ChangeEvent{Domain: "alice.ghost", EventType: EventUpdated, TransactionHash: string(rune('a' + i%26))})
	}

	events, ok := m.GetEvents(sub.ID, 0)
	if !ok {
		t.Fatalf("subscription should still exist")
	}
	if len(events) != maxQueueEvents {
		t.Fatalf("expected the queue to be capped at %d events, got %d", maxQueueEvents, len(events))
	}
}

func TestDomainSubscriptionCancel(t *testing.T) {
	m := NewDomainSubscriptionManager()
	sub := m.Subscribe("client1", []string{"alice.ghost"}, nil, false)

	if !m.CancelSubscription(sub.ID) {
		t.Fatalf("expected CancelSubscription to succeed for an existing subscription")
	}
	if m.CancelSubscription(sub.ID) {
		t.Fatalf("expected CancelSubscription to fail for an already-cancelled subscription")
	}
	if _, ok := m.GetEvents(sub.ID, 0); ok {
		t.Fatalf("expected GetEvents to fail after cancellation")
	}
}

func TestDomainSubscriptionCount(t *testing.T) {
	m := NewDomainSubscriptionManager()
	if m.Count() != 0 {
		t.Fatalf("expected 0 active subscriptions initially")
	}
	sub := m.Subscribe("client1", nil, nil, false)
	if m.Count() != 1 {
		t.Fatalf("expected 1 active subscription after Subscribe")
	}
	m.CancelSubscription(sub.ID)
	if m.Count() != 0 {
		t.Fatalf("expected 0 active subscriptions after cancellation")
	}
}

func TestCacheSubscriptionFiltersByClass(t *testing.T) {
	m := NewCacheSubscriptionManager()
	id := m.Subscribe("client1", true, false, false)

	m.Publish(CacheEvent{Type: CacheEventHit, Domain: "alice.ghost"})
	m.Publish(CacheEvent{Type: CacheEventMiss, Domain: "bob.ghost"})
	m.Publish(CacheEvent{Type: CacheEventFlush})

	events, ok := m.GetEvents(id, 0)
	if !ok {
		t.Fatalf("expected subscription to exist")
	}
	if len(events) != 2 {
		t.Fatalf("expected hit + flush events only (misses excluded), got %d", len(events))
	}
}
