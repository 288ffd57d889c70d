package zns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// udSuffixes lists the TLDs routed to Unstoppable Domains, mirroring
// CategoryUnstoppable in types.go.
var udSuffixes = []string{".crypto", ".nft", ".x", ".wallet", ".bitcoin", ".dao", ".888", ".blockchain"}

// udWalletPreference is the preferred chain order when multiple
// crypto.*.address keys are present.
var udWalletPreference = []string{"ETH", "BTC", "LTC", "DOGE"}

// UDBackend is the narrow interface the Unstoppable Domains resolver needs
// from an HTTP client against the UD API; the concrete HTTP client is an
// external collaborator supplied by production wiring.
type UDBackend interface {
	// Lookup returns the raw UD record map for domain, or nil if the
	// domain is unregistered.
	Lookup(ctx context.Context, domain string) (map[string]string, error)
}

// UDResolver is the "ud" category adapter, rate limited to 50 rps.
type UDResolver struct {
	backend UDBackend
	timeout time.Duration
	limiter *rate.Limiter
}

// NewUDResolver builds a UDResolver. backend may be nil, in which case
// Resolve always reports "not my namespace" by returning nil.
func NewUDResolver(backend UDBackend, timeout time.Duration) *UDResolver {
	return &UDResolver{
		backend: backend,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(50), 50),
	}
}

func (r *UDResolver) Name() ResolutionSource { return SourceUnstoppable }

func (r *UDResolver) ownsSuffix(domain string) bool {
	lower := strings.ToLower(domain)
	for _, s := range udSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// Resolve performs the Unstoppable Domains lookup and record mapping.
func (r *UDResolver) Resolve(ctx context.Context, domain string, recordTypes []RecordType) (*UpstreamResponse, error) {
	if !r.ownsSuffix(domain) {
		return nil, nil
	}
	if r.backend == nil {
		return nil, nil
	}
	if !r.limiter.Allow() {
		return &UpstreamResponse{Source: SourceUnstoppable, Error: NewError(ErrRateLimited, "ud bridge rate limit exceeded")}, nil
	}

	ctx, cancel := withResolutionTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.backend.Lookup(ctx, domain)
	if err != nil {
		return &UpstreamResponse{Source: SourceUnstoppable, Error: NewError(ErrResolverUnavailable, err.Error())}, nil
	}
	if raw == nil {
		return nil, nil
	}

	now := time.Now()
	var records []Record

	if v, ok := raw["dns.A"]; ok && wantsRecordType(recordTypes, RecordA) {
		records = append(records, Record{Type: RecordA, Name: domain, Value: v, TTL: 3600, CreatedAt: now})
	}
	if v, ok := raw["dns.AAAA"]; ok && wantsRecordType(recordTypes, RecordAAAA) {
		records = append(records, Record{Type: RecordAAAA, Name: domain, Value: v, TTL: 3600, CreatedAt: now})
	}

	if wantsRecordType(recordTypes, RecordWALLET) {
		for _, chain := range udWalletPreference {
			key := fmt.Sprintf("crypto.%s.address", chain)
			if v, ok := raw[key]; ok && v != "" {
				records = append(records, Record{Type: RecordWALLET, Name: domain, Value: v, TTL: 3600, CreatedAt: now})
				break
			}
		}
	}

	if v, ok := raw["dweb.ipfs.hash"]; ok {
		records = append(records, Record{Type: RecordCNAME, Name: domain, Value: "ipfs://" + v, TTL: 3600, CreatedAt: now})
	}
	if v, ok := raw["browser.redirect_url"]; ok {
		records = append(records, Record{Type: RecordCNAME, Name: domain, Value: v, TTL: 3600, CreatedAt: now})
	}

	if wantsRecordType(recordTypes, RecordTXT) {
		for _, key := range []string{"social.twitter.username", "social.discord.username", "social.github.username"} {
			if v, ok := raw[key]; ok && v != "" {
				records = append(records, Record{Type: RecordTXT, Name: domain, Value: fmt.Sprintf("%s=%s", key, v), TTL: 3600, CreatedAt: now})
			}
		}
	}

	return &UpstreamResponse{Records: records, Source: SourceUnstoppable}, nil
}
