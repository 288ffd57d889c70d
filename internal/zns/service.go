package zns

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// ServiceConfig carries the "Service" configuration block.
type ServiceConfig struct {
	EnableSubscriptions     bool
	EnableCacheEvents       bool
	EnableMetrics           bool
	EnableAlerts            bool
	PeriodicTaskInterval    time.Duration
}

// Service is the ZNS public facade. It owns the resolver core, both
// subscription managers, the metrics collector and the alert manager.
type Service struct {
	cfg ServiceConfig

	core         *Core
	cache        *Cache
	metrics      *Metrics
	alerts       *AlertManager
	rateLimiter  *RateLimiter
	domainSubs   *DomainSubscriptionManager
	cacheSubs    *CacheSubscriptionManager

	log *log.Logger
}

// NewService wires a Service from its collaborators.
func NewService(cfg ServiceConfig, core *Core, cache *Cache, metrics *Metrics, alerts *AlertManager, rateLimiter *RateLimiter, domainSubs *DomainSubscriptionManager, cacheSubs *CacheSubscriptionManager, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{
		cfg:         cfg,
		core:        core,
		cache:       cache,
		metrics:     metrics,
		alerts:      alerts,
		rateLimiter: rateLimiter,
		domainSubs:  domainSubs,
		cacheSubs:   cacheSubs,
		log:         logger,
	}
}

// IsZNSDomain reports whether domain belongs to a ZNS category; used by
// the multiplexer's DNS-to-ZNS redirect.
func (s *Service) IsZNSDomain(domain string) bool {
	return s.core.IsZNSDomain(domain)
}

// ActiveSubscriptionCount reports the number of live domain subscriptions,
// used by the periodic resource sampler to populate the active_subscriptions
// health gauge.
func (s *Service) ActiveSubscriptionCount() int {
	return s.domainSubs.Count()
}

// Resolve delegates to the resolver core.
func (s *Service) Resolve(ctx context.Context, req *ResolveRequest, clientID string) *ResolveResponse {
	resp := s.core.Resolve(ctx, req, clientID)
	if resp.Error != nil {
		s.metrics.RecordError(resp.Error.Code)
	}
	return resp
}

// Register delegates to the resolver core's register_domain path.
func (s *Service) Register(ctx context.Context, req *RegisterRequest, clientID string) *ResolveResponse {
	resp := s.core.RegisterDomain(ctx, req, clientID)
	if resp.Error != nil {
		s.metrics.RecordError(resp.Error.Code)
	}
	return resp
}

// Update delegates to the resolver core's update_domain path.
func (s *Service) Update(ctx context.Context, req *UpdateRequest, clientID string) *ResolveResponse {
	resp := s.core.UpdateDomain(ctx, req, clientID)
	if resp.Error != nil {
		s.metrics.RecordError(resp.Error.Code)
	}
	return resp
}

// CreateDomainSubscription creates a domain-change subscription and
// returns its ID.
func (s *Service) CreateDomainSubscription(req *SubscriptionRequest, clientID string) string {
	sub := s.domainSubs.Subscribe(clientID, req.Domains, req.RecordTypes, req.IncludeMetadata)
	return sub.ID
}

// CancelSubscription cancels a domain-change subscription.
func (s *Service) CancelSubscription(id string) bool {
	return s.domainSubs.CancelSubscription(id)
}

// GetSubscriptionEvents drains up to max events from a domain subscription.
func (s *Service) GetSubscriptionEvents(id string, max int) ([]ChangeEvent, bool) {
	return s.domainSubs.GetEvents(id, max)
}

// CreateCacheSubscription creates a cache-event subscription and returns
// its ID.
func (s *Service) CreateCacheSubscription(hits, misses, evictions bool, clientID string) string {
	return s.cacheSubs.Subscribe(clientID, hits, misses, evictions)
}

// GetCacheSubscriptionEvents drains up to max events from a cache
// subscription.
func (s *Service) GetCacheSubscriptionEvents(id string, max int) ([]CacheEvent, bool) {
	return s.cacheSubs.GetEvents(id, max)
}

// FlushCache clears the cache and emits a cache-FLUSH event.
func (s *Service) FlushCache() {
	s.cache.Clear()
	if s.cfg.EnableCacheEvents {
		s.cacheSubs.Publish(CacheEvent{Type: CacheEventFlush, Timestamp: time.Now()})
	}
}

// StatusReport is the payload returned by Status().
type StatusReport struct {
	Health         Health
	Uptime         time.Duration
	CacheStats     CacheStatistics
	ActiveAlerts   []string
}

// Status reports the service's current health.
func (s *Service) Status() StatusReport {
	snap := s.metrics.Snapshot()
	var active []string
	if s.alerts != nil {
		active = s.alerts.ActiveAlerts()
	}
	return StatusReport{
		Health:       snap.Health,
		Uptime:       time.Duration(snap.UptimeSeconds) * time.Second,
		CacheStats:   s.cache.Stats(),
		ActiveAlerts: active,
	}
}

// MetricsReport returns the full metrics snapshot.
func (s *Service) MetricsReport() Snapshot {
	return s.metrics.Snapshot()
}

// Prometheus renders the metrics snapshot in Prometheus text format.
func (s *Service) Prometheus() string {
	return PrometheusText(s.metrics.Snapshot())
}

// ResourceSampler supplies the live process gauges the periodic task
// refreshes; concrete sampling (e.g. via runtime.MemStats or /proc) is an
// ambient concern left to the caller wiring the service, not specified
// here.
type ResourceSampler interface {
	Sample() (memoryBytes int64, cpuPercent float64, openConnections, activeSubscriptions int64)
}

// RunPeriodicTasks executes the background work: cache cleanup, alert
// evaluation and resource-usage sampling. It is idempotent and safe under
// concurrent request processing.
func (s *Service) RunPeriodicTasks(sampler ResourceSampler) {
	removed := s.cache.CleanupExpired()
	if removed > 0 {
		s.log.WithField("removed", removed).Debug("periodic task: cleaned up expired cache entries")
	}

	if sampler != nil {
		mem, cpu, conns, subs := sampler.Sample()
		s.metrics.UpdateResourceUsage(mem, cpu, conns, subs)
	}

	if s.cfg.EnableAlerts && s.alerts != nil {
		s.alerts.Evaluate(s.metrics.Snapshot())
	}
}

// ResetRateLimitWindow resets the fixed 60-second tumbling window: the
// caller's periodic task must invoke this on that cadence (see
// cmd/ghostbridge/serve.go's ticker), separately from RunPeriodicTasks
// since its cadence (60s) differs from the configured
// PeriodicTaskInterval.
func (s *Service) ResetRateLimitWindow() {
	s.rateLimiter.ResetCounters()
}
