package zns

import (
	"context"
	"time"
)

// ResolverConfig carries the resolver subsystem's configuration block.
type ResolverConfig struct {
	EnableCache          bool
	EnableENSBridge      bool
	EnableUDBridge       bool
	EnableDNSFallback    bool
	MaxResolutionTime    time.Duration
	RateLimitPerMinute   int
}

// Core performs category routing, ordered fan-out across upstream
// resolvers, cache integration, and per-query metrics. It owns the cache,
// validator, metrics collector and rate limiter.
type Core struct {
	cfg ResolverConfig

	validator   *Validator
	cache       *Cache
	rateLimiter *RateLimiter
	metrics     *Metrics

	native       *NativeResolver
	ens          *ENSResolver
	ud           *UDResolver
	dnsFallback  *DNSFallbackResolver

	changeEvents *DomainSubscriptionManager
	cacheEvents  *CacheSubscriptionManager
}

// CoreDeps bundles the collaborators Core is constructed with.
type CoreDeps struct {
	Validator    *Validator
	Cache        *Cache
	RateLimiter  *RateLimiter
	Metrics      *Metrics
	Native       *NativeResolver
	ENS          *ENSResolver
	UD           *UDResolver
	DNSFallback  *DNSFallbackResolver
	ChangeEvents *DomainSubscriptionManager
	CacheEvents  *CacheSubscriptionManager
}

// NewCore builds a resolver Core from cfg and deps.
func NewCore(cfg ResolverConfig, deps CoreDeps) *Core {
	return &Core{
		cfg:          cfg,
		validator:    deps.Validator,
		cache:        deps.Cache,
		rateLimiter:  deps.RateLimiter,
		metrics:      deps.Metrics,
		native:       deps.Native,
		ens:          deps.ENS,
		ud:           deps.UD,
		dnsFallback:  deps.DNSFallback,
		changeEvents: deps.ChangeEvents,
		cacheEvents:  deps.CacheEvents,
	}
}

// dnsFallbackResolver returns the dns_fallback adapter as an
// UpstreamResolver when both configured and enabled, or nil otherwise.
func (c *Core) dnsFallbackResolver() UpstreamResolver {
	if c.dnsFallback == nil || !c.cfg.EnableDNSFallback {
		return nil
	}
	return c.dnsFallback
}

func (c *Core) nativeResolver() UpstreamResolver {
	if c.native == nil {
		return nil
	}
	return c.native
}

func (c *Core) ensResolver() UpstreamResolver {
	if c.ens == nil || !c.cfg.EnableENSBridge {
		return nil
	}
	return c.ens
}

func (c *Core) udResolver() UpstreamResolver {
	if c.ud == nil || !c.cfg.EnableUDBridge {
		return nil
	}
	return c.ud
}

// IsZNSDomain reports whether domain is syntactically valid and belongs to
// one of ZNS's categories; the multiplexer's DNS-to-ZNS redirect uses this
// to decide whether a /dns/* request should instead be routed to
// /zns/resolve.
func (c *Core) IsZNSDomain(domain string) bool {
	if !c.validator.IsValidDomain(domain) {
		return false
	}
	_, ok := c.validator.GetDomainCategory(domain)
	return ok
}

// orderedResolvers computes the per-category resolver ordering, dropping
// disabled/unconfigured adapters while preserving relative order.
func (c *Core) orderedResolvers(category Category) []UpstreamResolver {
	var chain []UpstreamResolver
	appendIfSet := func(r UpstreamResolver) {
		if r != nil {
			chain = append(chain, r)
		}
	}

	switch category {
	case CategoryIdentity, CategoryInfrastructure:
		appendIfSet(c.nativeResolver())
		appendIfSet(c.dnsFallbackResolver())
	case CategoryENSBridge:
		if c.cfg.EnableENSBridge {
			appendIfSet(c.ensResolver())
		} else {
			appendIfSet(c.dnsFallbackResolver())
		}
	case CategoryUnstoppable:
		if c.cfg.EnableUDBridge {
			appendIfSet(c.udResolver())
		} else {
			appendIfSet(c.dnsFallbackResolver())
		}
	case CategoryExperimental:
		appendIfSet(c.nativeResolver())
		appendIfSet(c.ensResolver())
		appendIfSet(c.udResolver())
		appendIfSet(c.dnsFallbackResolver())
	}
	return chain
}

// Resolve validates, checks the cache, then fans out across the configured
// resolver chain in category order until one claims the domain.
func (c *Core) Resolve(ctx context.Context, req *ResolveRequest, clientID string) *ResolveResponse {
	start := time.Now()
	resp := &ResolveResponse{Domain: req.Domain}

	if !c.rateLimiter.IsAllowed(clientID) {
		resp.Error = NewError(ErrRateLimited, "rate limit exceeded for client")
		c.metrics.RecordQuery(false, false, time.Since(start), "")
		return resp
	}

	if !c.validator.IsValidDomain(req.Domain) {
		resp.Error = NewError(ErrInvalidDomain, "domain failed syntax/suffix validation")
		c.metrics.RecordQuery(false, false, time.Since(start), "")
		return resp
	}

	category, _ := c.validator.GetDomainCategory(req.Domain)
	tld := tldOf(req.Domain)

	if req.UseCache && c.cfg.EnableCache {
		if dd, ok := c.cache.Get(req.Domain); ok {
			resp.Records = dd.Records
			if req.IncludeMetadata {
				resp.Metadata = &dd.Metadata
			}
			resp.ResolutionInfo = &ResolutionInfo{Source: SourceCache, WasCached: true, ResolutionTime: time.Since(start)}
			c.metrics.RecordQuery(true, true, time.Since(start), tld)
			c.emitCacheEvent(CacheEventHit, req.Domain)
			return resp
		}
		c.emitCacheEvent(CacheEventMiss, req.Domain)
	}

	resolvers := c.orderedResolvers(category)
	var lastErr *ResolveError
	var chain []string

	for _, r := range resolvers {
		chain = append(chain, string(r.Name()))
		upstream, err := r.Resolve(ctx, req.Domain, req.RecordTypes)
		if err != nil {
			lastErr = NewError(ErrInternal, err.Error())
			break
		}
		if upstream == nil {
			continue
		}
		if upstream.Error != nil {
			lastErr = upstream.Error
			break
		}

		resp.Records = upstream.Records
		if req.IncludeMetadata && upstream.Metadata != nil {
			resp.Metadata = upstream.Metadata
		}
		resp.ResolutionInfo = &ResolutionInfo{
			Source:          upstream.Source,
			WasCached:       false,
			ResolutionChain: chain,
			ResolutionTime:  time.Since(start),
		}

		if len(upstream.Records) > 0 && c.cfg.EnableCache {
			ttl := minRecordTTL(upstream.Records)
			if err := c.cache.Put(dataFromUpstream(req.Domain, upstream), &ttl, upstream.Source); err != nil {
				// a failed cache insert is never fatal for the request
			}
		}

		c.metrics.RecordQuery(true, false, time.Since(start), tld)
		return resp
	}

	if lastErr != nil {
		resp.Error = lastErr
		resp.Error.ResolutionChain = chain
		c.metrics.RecordQuery(false, false, time.Since(start), tld)
		return resp
	}

	resp.Error = NewError(ErrDomainNotFound, "no resolver claimed this domain")
	resp.Error.ResolutionChain = chain
	c.metrics.RecordQuery(false, false, time.Since(start), tld)
	return resp
}

func (c *Core) emitCacheEvent(t CacheEventType, domain string) {
	if c.cacheEvents != nil {
		c.cacheEvents.Publish(CacheEvent{Type: t, Domain: domain, Timestamp: time.Now()})
	}
}

// RegisterDomain checks the rate limit, the domain's syntax and that its
// category is identity or infrastructure, then creates a new domain record
// through the native resolver. Ownership is not checked.
func (c *Core) RegisterDomain(ctx context.Context, req *RegisterRequest, clientID string) *ResolveResponse {
	resp := &ResolveResponse{Domain: req.Domain}

	if !c.rateLimiter.IsAllowed(clientID) {
		resp.Error = NewError(ErrRateLimited, "rate limit exceeded for client")
		return resp
	}
	if !c.validator.IsValidDomain(req.Domain) {
		resp.Error = NewError(ErrInvalidDomain, "domain failed syntax/suffix validation")
		return resp
	}
	category, _ := c.validator.GetDomainCategory(req.Domain)
	if category != CategoryIdentity && category != CategoryInfrastructure {
		resp.Error = NewError(ErrPermissionDenied, "registration requires an identity or infrastructure domain")
		return resp
	}
	if c.native == nil {
		resp.Error = NewError(ErrResolverUnavailable, "native resolver not configured")
		return resp
	}

	dd := &DomainData{
		Domain:      req.Domain,
		Owner:       req.Owner,
		Records:     req.Records,
		Metadata:    req.Metadata,
		LastUpdated: time.Now(),
	}
	if err := c.native.RegisterDomain(ctx, dd); err != nil {
		if rerr, ok := err.(*ResolveError); ok {
			resp.Error = rerr
		} else {
			resp.Error = NewError(ErrInternal, err.Error())
		}
		return resp
	}

	resp.Records = dd.Records
	if c.changeEvents != nil {
		c.changeEvents.Publish(ChangeEvent{
			Domain:     req.Domain,
			EventType:  EventRegistered,
			NewRecords: req.Records,
			Timestamp:  time.Now(),
		})
	}
	return resp
}

// UpdateDomain validates a record update and applies it through the native
// resolver.
func (c *Core) UpdateDomain(ctx context.Context, req *UpdateRequest, clientID string) *ResolveResponse {
	resp := &ResolveResponse{Domain: req.Domain}

	if !c.rateLimiter.IsAllowed(clientID) {
		resp.Error = NewError(ErrRateLimited, "rate limit exceeded for client")
		return resp
	}
	category, ok := c.validator.GetDomainCategory(req.Domain)
	if !ok || (category != CategoryIdentity && category != CategoryInfrastructure) {
		resp.Error = NewError(ErrPermissionDenied, "update requires a native (identity/infrastructure) domain")
		return resp
	}

	var old []Record
	if dd, ok := c.cache.Get(req.Domain); ok {
		old = dd.Records
	}

	for i := range req.Records {
		if res := c.validator.ValidateRecord(&req.Records[i]); res != ValidOK {
			resp.Error = NewError(ErrInvalidRecordType, "record failed validation: "+string(res))
			return resp
		}
	}

	if c.native == nil {
		resp.Error = NewError(ErrResolverUnavailable, "native resolver not configured")
		return resp
	}

	dd := &DomainData{Domain: req.Domain, Records: req.Records, LastUpdated: time.Now(), Signature: req.Signature}
	if err := c.native.UpdateDomain(ctx, dd); err != nil {
		if rerr, ok := err.(*ResolveError); ok {
			resp.Error = rerr
		} else {
			resp.Error = NewError(ErrInternal, err.Error())
		}
		return resp
	}

	c.cache.Remove(req.Domain)
	resp.Records = req.Records

	if c.changeEvents != nil {
		c.changeEvents.Publish(ChangeEvent{
			Domain:     req.Domain,
			EventType:  EventUpdated,
			OldRecords: old,
			NewRecords: req.Records,
			Timestamp:  time.Now(),
		})
	}
	return resp
}

func dataFromUpstream(domain string, upstream *UpstreamResponse) *DomainData {
	dd := &DomainData{Domain: domain, Records: upstream.Records, LastUpdated: time.Now()}
	if upstream.Metadata != nil {
		dd.Metadata = *upstream.Metadata
	}
	return dd
}

func minRecordTTL(records []Record) uint32 {
	if len(records) == 0 {
		return 0
	}
	min := records[0].TTL
	for _, r := range records[1:] {
		if r.TTL < min {
			min = r.TTL
		}
	}
	return min
}

func tldOf(domain string) string {
	idx := -1
	for i := len(domain) - 1; i >= 0; i-- {
		if domain[i] == '.' {
			idx = i
			break
		}
	}
	if idx == -1 {
		return domain
	}
	return domain[idx+1:]
}
