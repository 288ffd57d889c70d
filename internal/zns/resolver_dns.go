package zns

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// DNSFallbackResolver is the "dns_fallback" adapter: a classic recursive
// DNS lookup, used only for categories where it is enabled.
type DNSFallbackResolver struct {
	client  *dns.Client
	server  string
	timeout time.Duration
}

// NewDNSFallbackResolver builds a DNSFallbackResolver that queries server
// (host:port, e.g. "1.1.1.1:53") with the given per-call timeout.
func NewDNSFallbackResolver(server string, timeout time.Duration) *DNSFallbackResolver {
	return &DNSFallbackResolver{
		client:  &dns.Client{Timeout: timeout},
		server:  server,
		timeout: timeout,
	}
}

func (r *DNSFallbackResolver) Name() ResolutionSource { return SourceTraditionalDNS }

var recordToDNSType = map[RecordType]uint16{
	RecordA:     dns.TypeA,
	RecordAAAA:  dns.TypeAAAA,
	RecordCNAME: dns.TypeCNAME,
	RecordMX:    dns.TypeMX,
	RecordTXT:   dns.TypeTXT,
	RecordNS:    dns.TypeNS,
	RecordSRV:   dns.TypeSRV,
	RecordSOA:   dns.TypeSOA,
	RecordPTR:   dns.TypePTR,
}

// Resolve queries the configured recursive DNS server for each requested
// record type (A if none specified) and maps the replies to GhostBridge
// Records. Traditional DNS never "owns" a namespace in the same sense as
// the other adapters: an unreachable server or SERVFAIL surfaces as an
// owned-namespace error, since dns_fallback is always the resolver of last
// resort and there is nothing further to try.
func (r *DNSFallbackResolver) Resolve(ctx context.Context, domain string, recordTypes []RecordType) (*UpstreamResponse, error) {
	if r.server == "" {
		return nil, nil
	}

	types := recordTypes
	if len(types) == 0 {
		types = []RecordType{RecordA}
	}

	var records []Record
	now := time.Now()
	for _, rt := range types {
		qtype, ok := recordToDNSType[rt]
		if !ok {
			continue
		}
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(domain), qtype)
		m.RecursionDesired = true

		ctx, cancel := withResolutionTimeout(ctx, r.timeout)
		resp, _, err := r.client.ExchangeContext(ctx, m, r.server)
		cancel()
		if err != nil {
			return &UpstreamResponse{
				Source: SourceTraditionalDNS,
				Error:  NewError(ErrResolverUnavailable, fmt.Sprintf("dns fallback query failed: %v", err)),
			}, nil
		}
		if resp.Rcode == dns.RcodeServerFailure {
			return &UpstreamResponse{
				Source: SourceTraditionalDNS,
				Error:  NewError(ErrResolverUnavailable, "dns fallback server returned SERVFAIL"),
			}, nil
		}
		if resp.Rcode != dns.RcodeSuccess {
			continue
		}
		for _, ans := range resp.Answer {
			if rec, ok := convertDNSAnswer(domain, rt, ans, now); ok {
				records = append(records, rec)
			}
		}
	}

	if len(records) == 0 {
		return nil, nil
	}
	return &UpstreamResponse{Records: records, Source: SourceTraditionalDNS}, nil
}

func convertDNSAnswer(domain string, rt RecordType, ans dns.RR, now time.Time) (Record, bool) {
	ttl := ans.Header().Ttl
	switch v := ans.(type) {
	case *dns.A:
		return Record{Type: RecordA, Name: domain, Value: v.A.String(), TTL: ttl, CreatedAt: now}, true
	case *dns.AAAA:
		return Record{Type: RecordAAAA, Name: domain, Value: v.AAAA.String(), TTL: ttl, CreatedAt: now}, true
	case *dns.CNAME:
		return Record{Type: RecordCNAME, Name: domain, Value: v.Target, TTL: ttl, CreatedAt: now}, true
	case *dns.MX:
		pri := v.Preference
		p16 := uint16(pri)
		return Record{Type: RecordMX, Name: domain, Value: v.Mx, Target: v.Mx, Priority: &p16, TTL: ttl, CreatedAt: now}, true
	case *dns.TXT:
		value := ""
		for _, s := range v.Txt {
			value += s
		}
		return Record{Type: RecordTXT, Name: domain, Value: value, TTL: ttl, CreatedAt: now}, true
	case *dns.NS:
		return Record{Type: RecordNS, Name: domain, Value: v.Ns, TTL: ttl, CreatedAt: now}, true
	case *dns.PTR:
		return Record{Type: RecordPTR, Name: domain, Value: v.Ptr, TTL: ttl, CreatedAt: now}, true
	default:
		_ = rt
		return Record{}, false
	}
}
