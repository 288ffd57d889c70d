package zns

import (
	"context"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	core := newTestCore(t, 100)
	cache := newTestCache(100, 1<<20)
	metrics := NewMetrics(100, HealthLimits{})
	domainSubs := NewDomainSubscriptionManager()
	cacheSubs := NewCacheSubscriptionManager()
	alerts := NewAlertManager(nil, &recordingNotifier{}, nil)

	return NewService(ServiceConfig{
		EnableSubscriptions: true,
		EnableCacheEvents:   true,
		EnableMetrics:       true,
		EnableAlerts:        true,
	}, core, cache, metrics, alerts, core.rateLimiter, domainSubs, cacheSubs, nil)
}

func TestServiceResolveRecordsErrorInMetrics(t *testing.T) {
	svc := newTestService(t)
	resp := svc.Resolve(context.Background(), &ResolveRequest{Domain: "not a domain"}, "c1")
	if resp.Error == nil {
		t.Fatalf("expected an error for an invalid domain")
	}
	snap := svc.MetricsReport()
	if snap.PerErrorKind[ErrInvalidDomain] != 1 {
		t.Fatalf("expected the resolve error to be tallied in metrics, got %v", snap.PerErrorKind)
	}
}

func TestServiceDomainSubscriptionLifecycle(t *testing.T) {
	svc := newTestService(t)

	id := svc.CreateDomainSubscription(&SubscriptionRequest{Domains: []string{"alice.ghost"}}, "client1")
	if id == "" {
		t.Fatalf("expected a non-empty subscription ID")
	}
	if svc.ActiveSubscriptionCount() != 1 {
		t.Fatalf("expected 1 active subscription, got %d", svc.ActiveSubscriptionCount())
	}

	if !svc.CancelSubscription(id) {
		t.Fatalf("expected CancelSubscription to succeed")
	}
	if svc.ActiveSubscriptionCount() != 0 {
		t.Fatalf("expected 0 active subscriptions after cancel, got %d", svc.ActiveSubscriptionCount())
	}
}

func TestServiceCacheSubscriptionLifecycle(t *testing.T) {
	svc := newTestService(t)
	id := svc.CreateCacheSubscription(true, true, true, "client1")

	events, ok := svc.GetCacheSubscriptionEvents(id, 0)
	if !ok {
		t.Fatalf("expected the cache subscription to exist")
	}
	if len(events) != 0 {
		t.Fatalf("expected no events before any cache activity, got %d", len(events))
	}
}

func TestServiceFlushCacheEmitsEvent(t *testing.T) {
	svc := newTestService(t)
	id := svc.CreateCacheSubscription(false, false, false, "client1")

	svc.FlushCache()

	events, ok := svc.GetCacheSubscriptionEvents(id, 0)
	if !ok {
		t.Fatalf("expected the subscription to exist")
	}
	if len(events) != 1 || events[0].Type != CacheEventFlush {
		t.Fatalf("expected exactly one FLUSH event, got %+v", events)
	}
}

func TestServiceStatusReportsHealthAndCacheStats(t *testing.T) {
	svc := newTestService(t)
	report := svc.Status()
	if report.Health != HealthHealthy {
		t.Fatalf("expected a freshly constructed service to report healthy, got %v", report.Health)
	}
	if report.CacheStats.Entries != 0 {
		t.Fatalf("expected an empty cache to report 0 entries, got %d", report.CacheStats.Entries)
	}
}

type fixedSampler struct {
	mem, cpu      float64
	conns, subs   int64
}

func (f fixedSampler) Sample() (memoryBytes int64, cpuPercent float64, openConnections, activeSubscriptions int64) {
	return int64(f.mem), f.cpu, f.conns, f.subs
}

func TestServiceRunPeriodicTasksUpdatesResourceGauges(t *testing.T) {
	svc := newTestService(t)
	svc.RunPeriodicTasks(fixedSampler{mem: 1234, cpu: 12.5, conns: 3, subs: 2})

	snap := svc.MetricsReport()
	if snap.MemoryUsageBytes != 1234 {
		t.Fatalf("expected memory gauge to be updated, got %d", snap.MemoryUsageBytes)
	}
	if snap.OpenConnections != 3 {
		t.Fatalf("expected open connections gauge to be updated, got %d", snap.OpenConnections)
	}
}

func TestServiceResetRateLimitWindow(t *testing.T) {
	svc := newTestService(t)

	resp1 := svc.Resolve(context.Background(), &ResolveRequest{Domain: "alice.ghost"}, "ratelimited-client")
	_ = resp1

	// Exhaust the window (rate limiter ceiling is 100 from newTestCore), then
	// verify the reset clears the underlying limiter state by asserting the
	// client is allowed again immediately after a reset.
	for svc.rateLimiter.IsAllowed("ratelimited-client") {
	}
	if svc.rateLimiter.IsAllowed("ratelimited-client") {
		t.Fatalf("expected the client to be rate limited before the reset")
	}
	svc.ResetRateLimitWindow()
	if !svc.rateLimiter.IsAllowed("ratelimited-client") {
		t.Fatalf("expected a fresh window to allow the client")
	}
}
