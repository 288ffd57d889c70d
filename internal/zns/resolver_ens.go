package zns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
	"golang.org/x/time/rate"
)

// ensTextKeys is the fixed list of text-record keys the ENS bridge reads.
var ensTextKeys = []string{"email", "url", "avatar", "description", "com.twitter", "com.github"}

// ENSBackend is the narrow interface the ENS resolver needs from an actual
// Ethereum client; concrete ENS contract ABI encoding is supplied from
// outside the package by production wiring.
type ENSBackend interface {
	// ResolverAddress returns the resolver contract address registered for
	// the given namehash, or "" if none is registered.
	ResolverAddress(ctx context.Context, namehash [32]byte) (string, error)
	// Addr returns the ENS resolver's `addr` record for the namehash.
	Addr(ctx context.Context, resolver string, namehash [32]byte) (string, error)
	// Text returns the ENS resolver's `text(key)` record for the namehash.
	Text(ctx context.Context, resolver string, namehash [32]byte, key string) (string, error)
	// ContentHash returns the ENS resolver's `contenthash` record.
	ContentHash(ctx context.Context, resolver string, namehash [32]byte) (string, error)
}

// ENSResolver is the "ens" category adapter: ENS resolver lookup via
// namehash, then addr/text/contenthash reads, rate limited to 100 rps.
type ENSResolver struct {
	backend ENSBackend
	timeout time.Duration
	limiter *rate.Limiter
}

// NewENSResolver builds an ENSResolver. backend may be nil, in which case
// Resolve always reports "not my namespace" by returning nil, since ENS
// contract ABI encoding is an external collaborator supplied by
// production wiring.
func NewENSResolver(backend ENSBackend, timeout time.Duration) *ENSResolver {
	return &ENSResolver{
		backend: backend,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(100), 100),
	}
}

func (r *ENSResolver) Name() ResolutionSource { return SourceENSBridge }

// Namehash computes ENS's recursive Keccak-256 namehash over domain's
// labels in reverse order, per the GLOSSARY.
func Namehash(domain string) [32]byte {
	var node [32]byte
	if domain == "" {
		return node
	}
	labels := strings.Split(domain, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := Keccak256([]byte(labels[i]))
		node = Keccak256(append(node[:], labelHash[:]...))
	}
	return node
}

// Keccak256 hashes data with the legacy (pre-NIST) Keccak-256 permutation
// that Ethereum uses throughout its address and namehash schemes.
func Keccak256(data []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Resolve performs the ENS bridge lookup for .eth domains.
func (r *ENSResolver) Resolve(ctx context.Context, domain string, recordTypes []RecordType) (*UpstreamResponse, error) {
	if !strings.HasSuffix(domain, ".eth") {
		return nil, nil
	}
	if r.backend == nil {
		return nil, nil
	}
	if !r.limiter.Allow() {
		return &UpstreamResponse{Source: SourceENSBridge, Error: NewError(ErrRateLimited, "ens bridge rate limit exceeded")}, nil
	}

	ctx, cancel := withResolutionTimeout(ctx, r.timeout)
	defer cancel()

	node := Namehash(domain)
	resolverAddr, err := r.backend.ResolverAddress(ctx, node)
	if err != nil {
		return &UpstreamResponse{Source: SourceENSBridge, Error: NewError(ErrResolverUnavailable, err.Error())}, nil
	}
	if resolverAddr == "" {
		return nil, nil
	}

	var records []Record
	now := time.Now()

	if wantsRecordType(recordTypes, RecordA) || wantsRecordType(recordTypes, RecordCONTRACT) {
		if addr, err := r.backend.Addr(ctx, resolverAddr, node); err == nil && addr != "" {
			records = append(records, Record{Type: RecordCONTRACT, Name: domain, Value: addr, TTL: 3600, CreatedAt: now})
		}
	}

	if wantsRecordType(recordTypes, RecordTXT) {
		for _, key := range ensTextKeys {
			val, err := r.backend.Text(ctx, resolverAddr, node, key)
			if err != nil || val == "" {
				continue
			}
			records = append(records, Record{Type: RecordTXT, Name: domain, Value: fmt.Sprintf("%s=%s", key, val), TTL: 3600, CreatedAt: now})
		}
	}

	if hash, err := r.backend.ContentHash(ctx, resolverAddr, node); err == nil && hash != "" {
		records = append(records, Record{Type: RecordCNAME, Name: domain, Value: hash, TTL: 3600, CreatedAt: now})
	}

	return &UpstreamResponse{Records: records, Source: SourceENSBridge}, nil
}

func wantsRecordType(requested []RecordType, t RecordType) bool {
	if len(requested) == 0 {
		return true
	}
	for _, rt := range requested {
		if rt == t {
			return true
		}
	}
	return false
}
