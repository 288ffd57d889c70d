package zns

import (
	"testing"
	"time"
)

func TestMovingAverageWindowEviction(t *testing.T) {
	ma := newMovingAverage(3)
	ma.add(1)
	ma.add(2)
	ma.add(3)
	if got := ma.value(); got != 2 {
		t.Fatalf("value() = %v, want 2", got)
	}
	ma.add(10) // evicts the 1, window now holds 2,3,10
	if got := ma.value(); got != 5 {
		t.Fatalf("value() after eviction = %v, want 5", got)
	}
}

func TestMovingAverageEmpty(t *testing.T) {
	ma := newMovingAverage(5)
	if got := ma.value(); got != 0 {
		t.Fatalf("value() on empty average = %v, want 0", got)
	}
}

func TestMetricsRecordQueryCounters(t *testing.T) {
	m := NewMetrics(100, HealthLimits{})

	m.RecordQuery(true, true, 10*time.Millisecond, "ghost")
	m.RecordQuery(false, false, 20*time.Millisecond, "ghost")

	snap := m.Snapshot()
	if snap.TotalQueries != 2 {
		t.Fatalf("TotalQueries = %d, want 2", snap.TotalQueries)
	}
	if snap.SuccessfulQueries != 1 || snap.FailedQueries != 1 {
		t.Fatalf("SuccessfulQueries=%d FailedQueries=%d, want 1/1", snap.SuccessfulQueries, snap.FailedQueries)
	}
	if snap.CacheHits != 1 || snap.CacheMisses != 1 {
		t.Fatalf("CacheHits=%d CacheMisses=%d, want 1/1", snap.CacheHits, snap.CacheMisses)
	}
	if snap.PerTLD["ghost"] != 2 {
		t.Fatalf("PerTLD[ghost] = %d, want 2", snap.PerTLD["ghost"])
	}
}

func TestMetricsRateLimitedQueryOmitsTLD(t *testing.T) {
	m := NewMetrics(100, HealthLimits{})
	m.RecordQuery(false, false, time.Millisecond, "")
	snap := m.Snapshot()
	if len(snap.PerTLD) != 0 {
		t.Fatalf("expected no per-TLD counters to be incremented for a rate-limited query, got %v", snap.PerTLD)
	}
}

func TestComputeHealthHealthy(t *testing.T) {
	m := NewMetrics(100, HealthLimits{MaxMemoryBytes: 1000})
	for i := 0; i < 10; i++ {
		m.RecordQuery(true, true, time.Millisecond, "ghost")
	}
	m.UpdateResourceUsage(100, 5, 1, 0)
	if got := m.ComputeHealth(); got != HealthHealthy {
		t.Fatalf("ComputeHealth() = %v, want healthy", got)
	}
}

func TestComputeHealthDegradedOnErrorRate(t *testing.T) {
	m := NewMetrics(100, HealthLimits{MaxMemoryBytes: 1000})
	for i := 0; i < 5; i++ {
		m.RecordQuery(false, false, time.Millisecond, "ghost")
	}
	m.UpdateResourceUsage(100, 5, 1, 0)
	if got := m.ComputeHealth(); got != HealthDegraded {
		t.Fatalf("ComputeHealth() = %v, want degraded (error rate > 10%%)", got)
	}
}

func TestComputeHealthDegradedOnSlowResolution(t *testing.T) {
	m := NewMetrics(100, HealthLimits{MaxMemoryBytes: 1000})
	m.RecordQuery(true, true, 6*time.Second, "ghost")
	m.UpdateResourceUsage(100, 5, 1, 0)
	if got := m.ComputeHealth(); got != HealthDegraded {
		t.Fatalf("ComputeHealth() = %v, want degraded (avg resolution > 5000ms)", got)
	}
}

func TestComputeHealthUnhealthyOnMemory(t *testing.T) {
	m := NewMetrics(100, HealthLimits{MaxMemoryBytes: 1000})
	m.RecordQuery(true, true, time.Millisecond, "ghost")
	m.UpdateResourceUsage(950, 5, 1, 0) // 95% of 1000, above the 90% threshold
	if got := m.ComputeHealth(); got != HealthUnhealthy {
		t.Fatalf("ComputeHealth() = %v, want unhealthy", got)
	}
}

func TestMetricsResolverAndErrorTallies(t *testing.T) {
	m := NewMetrics(100, HealthLimits{})
	m.RecordResolverUsage(SourceENSBridge)
	m.RecordResolverUsage(SourceENSBridge)
	m.RecordError(ErrDomainNotFound)

	snap := m.Snapshot()
	if snap.PerResolver[SourceENSBridge] != 2 {
		t.Fatalf("PerResolver[ENSBridge] = %d, want 2", snap.PerResolver[SourceENSBridge])
	}
	if snap.PerErrorKind[ErrDomainNotFound] != 1 {
		t.Fatalf("PerErrorKind[DomainNotFound] = %d, want 1", snap.PerErrorKind[ErrDomainNotFound])
	}
}
