package zns

import (
	"context"
	"time"
)

// UpstreamResponse is what an upstream resolver returns for a resolved
// domain, before it is wrapped into a ResolveResponse by the resolver core.
type UpstreamResponse struct {
	Records  []Record
	Metadata *Metadata
	Source   ResolutionSource
	Error    *ResolveError
}

// UpstreamResolver is the common trait every adapter (native, ens, ud,
// dns_fallback) implements.
//
// Resolve returns (nil, nil) when the domain is outside the resolver's
// namespace ("try the next"); a non-nil response with a non-nil Error when
// the resolver owns the domain but failed (the caller must not try the
// next resolver); and a non-nil response with a nil Error on success.
type UpstreamResolver interface {
	Resolve(ctx context.Context, domain string, recordTypes []RecordType) (*UpstreamResponse, error)
	Name() ResolutionSource
}

// withResolutionTimeout bounds every upstream call with the configured
// max_resolution_time_ms.
func withResolutionTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
