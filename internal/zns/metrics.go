package zns

import (
	"sync"
	"time"
)

// movingAverage is a fixed-window moving average over up to `window`
// samples.
type movingAverage struct {
	mu      sync.Mutex
	samples []float64
	window  int
	sum     float64
}

func newMovingAverage(window int) *movingAverage {
	return &movingAverage{window: window}
}

func (m *movingAverage) add(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, v)
	m.sum += v
	if len(m.samples) > m.window {
		m.sum -= m.samples[0]
		m.samples = m.samples[1:]
	}
}

func (m *movingAverage) value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return 0
	}
	return m.sum / float64(len(m.samples))
}

// Health enumerates the server's computed health state.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// HealthLimits carries the thresholds Metrics.ComputeHealth evaluates
// against, so they can be sourced from configuration rather than baked in.
type HealthLimits struct {
	MaxMemoryBytes int64
}

// Metrics owns the counters, moving averages, gauges and health
// computation. A single Metrics instance is shared across the resolver
// core, the service facade and the Prometheus exporter.
type Metrics struct {
	mu sync.Mutex

	totalQueries      uint64
	successfulQueries uint64
	failedQueries     uint64
	cacheHits         uint64
	cacheMisses       uint64
	perResolver       map[ResolutionSource]uint64
	perErrorKind      map[ErrorCode]uint64
	perTLD            map[string]uint64

	qps              *movingAverage
	avgResolutionMS  *movingAverage
	cacheHitRatio    *movingAverage
	errorRatio       *movingAverage

	memoryUsageBytes   int64
	cpuPercent         float64
	openConnections    int64
	activeSubscriptions int64
	startedAt          time.Time

	limits HealthLimits
}

// NewMetrics builds an empty Metrics collector. window sets the sample
// count for every moving average (60 or 100 are typical).
func NewMetrics(window int, limits HealthLimits) *Metrics {
	return &Metrics{
		perResolver:     make(map[ResolutionSource]uint64),
		perErrorKind:    make(map[ErrorCode]uint64),
		perTLD:          make(map[string]uint64),
		qps:             newMovingAverage(window),
		avgResolutionMS: newMovingAverage(window),
		cacheHitRatio:   newMovingAverage(window),
		errorRatio:      newMovingAverage(window),
		startedAt:       time.Now(),
		limits:          limits,
	}
}

// RecordQuery updates the query counters and moving averages for one
// completed resolution. Rate-limit short-circuits must not call this with
// a TLD, since rate-limit errors do not increment per-TLD counters; pass
// "" for tld in that case.
func (m *Metrics) RecordQuery(success, cacheHit bool, latency time.Duration, tld string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalQueries++
	if success {
		m.successfulQueries++
		m.errorRatio.add(0)
	} else {
		m.failedQueries++
		m.errorRatio.add(1)
	}
	if cacheHit {
		m.cacheHits++
		m.cacheHitRatio.add(1)
	} else {
		m.cacheMisses++
		m.cacheHitRatio.add(0)
	}
	if tld != "" {
		m.perTLD[tld]++
	}
	m.avgResolutionMS.add(float64(latency.Milliseconds()))
	m.qps.add(1)
}

// RecordResolverUsage tallies one invocation of the given upstream resolver.
func (m *Metrics) RecordResolverUsage(source ResolutionSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perResolver[source]++
}

// RecordError tallies one occurrence of the given error kind.
func (m *Metrics) RecordError(code ErrorCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perErrorKind[code]++
}

// UpdateResourceUsage refreshes the gauge metrics; called by the periodic
// background task.
func (m *Metrics) UpdateResourceUsage(memoryBytes int64, cpuPercent float64, openConnections, activeSubscriptions int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memoryUsageBytes = memoryBytes
	m.cpuPercent = cpuPercent
	m.openConnections = openConnections
	m.activeSubscriptions = activeSubscriptions
}

// Snapshot is an immutable copy of the current metrics state.
type Snapshot struct {
	TotalQueries      uint64
	SuccessfulQueries uint64
	FailedQueries     uint64
	CacheHits         uint64
	CacheMisses       uint64
	PerResolver       map[ResolutionSource]uint64
	PerErrorKind      map[ErrorCode]uint64
	PerTLD            map[string]uint64

	QPS             float64
	AvgResolutionMS float64
	CacheHitRate    float64
	ErrorRate       float64

	MemoryUsageBytes    int64
	CPUPercent          float64
	OpenConnections     int64
	ActiveSubscriptions int64
	UptimeSeconds       float64

	Health Health
}

// Snapshot returns a point-in-time copy of every metric, including the
// computed health state.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		TotalQueries:        m.totalQueries,
		SuccessfulQueries:   m.successfulQueries,
		FailedQueries:       m.failedQueries,
		CacheHits:           m.cacheHits,
		CacheMisses:         m.cacheMisses,
		PerResolver:         cloneCountMap(m.perResolver),
		PerErrorKind:        cloneErrCountMap(m.perErrorKind),
		PerTLD:              cloneStrCountMap(m.perTLD),
		QPS:                 m.qps.value(),
		AvgResolutionMS:     m.avgResolutionMS.value(),
		CacheHitRate:        m.cacheHitRatio.value(),
		ErrorRate:           m.errorRatio.value(),
		MemoryUsageBytes:    m.memoryUsageBytes,
		CPUPercent:          m.cpuPercent,
		OpenConnections:     m.openConnections,
		ActiveSubscriptions: m.activeSubscriptions,
		UptimeSeconds:       time.Since(m.startedAt).Seconds(),
	}
	s.Health = m.computeHealthLocked(s)
	return s
}

// ComputeHealth re-derives the health state from the current counters:
// unhealthy if memory > 90% of limit; degraded if error rate > 10%, CPU >
// 80%, or average response time > 5000ms; healthy otherwise.
func (m *Metrics) ComputeHealth() Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.computeHealthLocked(Snapshot{
		ErrorRate:       m.errorRatio.value(),
		AvgResolutionMS: m.avgResolutionMS.value(),
		MemoryUsageBytes: m.memoryUsageBytes,
		CPUPercent:      m.cpuPercent,
	})
}

func (m *Metrics) computeHealthLocked(s Snapshot) Health {
	if m.limits.MaxMemoryBytes > 0 && s.MemoryUsageBytes > (m.limits.MaxMemoryBytes*9)/10 {
		return HealthUnhealthy
	}
	if s.ErrorRate > 0.10 || s.CPUPercent > 80 || s.AvgResolutionMS > 5000 {
		return HealthDegraded
	}
	return HealthHealthy
}

func cloneCountMap(in map[ResolutionSource]uint64) map[ResolutionSource]uint64 {
	out := make(map[ResolutionSource]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneErrCountMap(in map[ErrorCode]uint64) map[ErrorCode]uint64 {
	out := make(map[ErrorCode]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStrCountMap(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
