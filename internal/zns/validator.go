package zns

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ValidationResult enumerates the outcomes of record validation.
type ValidationResult string

const (
	ValidOK                 ValidationResult = "valid"
	ValidInvalidFormat      ValidationResult = "invalid_format"
	ValidInvalidLength      ValidationResult = "invalid_length"
	ValidUnsupportedType    ValidationResult = "unsupported_type"
	ValidSignatureInvalid   ValidationResult = "signature_invalid"
)

// Validator implements the domain/record/signature checks. It carries only
// a logger; all other state is per-call rather than held on a stateful
// validator object.
type Validator struct {
	log *log.Logger
}

// NewValidator builds a Validator using the supplied logger, or a default
// logrus logger if nil.
func NewValidator(logger *log.Logger) *Validator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Validator{log: logger}
}

// IsValidDomain checks total length, first/last byte, label shape and
// suffix whitelist.
func (v *Validator) IsValidDomain(s string) bool {
	if len(s) == 0 || len(s) > 253 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	if first == '.' || first == '-' || last == '.' || last == '-' {
		return false
	}
	labels := strings.Split(s, ".")
	for _, label := range labels {
		if label == "" {
			return false
		}
	}
	_, ok := v.GetDomainCategory(s)
	return ok
}

// GetDomainCategory returns the category for s's suffix, or false if the
// suffix is not in the supported whitelist.
func (v *Validator) GetDomainCategory(s string) (Category, bool) {
	lower := strings.ToLower(s)
	for suffix, cat := range suffixCategories {
		if strings.HasSuffix(lower, suffix) {
			return cat, true
		}
	}
	return "", false
}

// ValidateRecord performs type-specific syntax validation.
func (v *Validator) ValidateRecord(r *Record) ValidationResult {
	switch r.Type {
	case RecordA:
		if !isDottedQuad(r.Value) {
			return ValidInvalidFormat
		}
	case RecordAAAA:
		if !strings.Contains(r.Value, ":") || len(r.Value) < 2 || len(r.Value) > 39 {
			return ValidInvalidFormat
		}
		if net.ParseIP(r.Value) == nil {
			return ValidInvalidFormat
		}
	case RecordCNAME, RecordNS:
		if !v.IsValidDomain(r.Value) {
			return ValidInvalidFormat
		}
	case RecordMX:
		if r.Priority == nil || !v.IsValidDomain(r.Target) {
			return ValidInvalidFormat
		}
	case RecordSRV:
		if r.Priority == nil || r.Weight == nil || r.Port == nil || !v.IsValidDomain(r.Target) {
			return ValidInvalidFormat
		}
	case RecordTXT:
		if len(r.Value) > 255 {
			return ValidInvalidLength
		}
	case RecordCONTRACT, RecordWALLET:
		if !isHexAddress(r.Value) {
			return ValidInvalidFormat
		}
	case RecordGHOST, RecordSOA, RecordPTR:
		// no additional structural constraints beyond the generic record shape
	default:
		return ValidUnsupportedType
	}
	return ValidOK
}

func isDottedQuad(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

func isHexAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) != 42 {
		return false
	}
	for _, c := range s[2:] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// canonicalDomainDataEncoding builds the deterministic byte sequence that
// DomainData signatures are computed over:
// domain | owner | H(records) | last_updated, with H hashing each record's
// (name, value, ttl) into SHA-256.
func canonicalDomainDataEncoding(d *DomainData) []byte {
	h := sha256.New()
	for _, r := range d.Records {
		h.Write([]byte(r.Name))
		h.Write([]byte{0})
		h.Write([]byte(r.Value))
		h.Write([]byte{0})
		var ttlBuf [4]byte
		binary.BigEndian.PutUint32(ttlBuf[:], r.TTL)
		h.Write(ttlBuf[:])
	}
	recordsHash := h.Sum(nil)

	buf := make([]byte, 0, len(d.Domain)+len(d.Owner)+len(recordsHash)+8)
	buf = append(buf, d.Domain...)
	buf = append(buf, '|')
	buf = append(buf, d.Owner...)
	buf = append(buf, '|')
	buf = append(buf, recordsHash...)
	buf = append(buf, '|')
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(d.LastUpdated.UnixNano()))
	buf = append(buf, tsBuf[:]...)
	return buf
}

// VerifyDomainSignature verifies d.Signature is a valid Ed25519 signature
// by publicKey over the canonical domain data encoding.
func (v *Validator) VerifyDomainSignature(d *DomainData, publicKey ed25519.PublicKey) bool {
	if len(d.Signature) == 0 || len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	msg := canonicalDomainDataEncoding(d)
	return ed25519.Verify(publicKey, msg, d.Signature)
}

// RateLimiter implements a fixed-window counter: no sliding window; the
// window ends only when ResetCounters is called (the serve command's own
// 60-second ticker does so through Service.ResetRateLimitWindow).
type RateLimiter struct {
	mu       sync.Mutex
	counts   map[string]int
	ceiling  int
}

// NewRateLimiter builds a RateLimiter that allows up to ceiling calls per
// client_id within the current window.
func NewRateLimiter(ceiling int) *RateLimiter {
	return &RateLimiter{
		counts:  make(map[string]int),
		ceiling: ceiling,
	}
}

// IsAllowed increments clientID's counter and reports whether the call is
// within the configured ceiling for the current window.
func (rl *RateLimiter) IsAllowed(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.counts[clientID]++
	return rl.counts[clientID] <= rl.ceiling
}

// ResetCounters clears every client's counter, starting a new window. The
// serve command calls it every 60 seconds from a dedicated ticker, through
// Service.ResetRateLimitWindow, separately from RunPeriodicTasks.
func (rl *RateLimiter) ResetCounters() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.counts = make(map[string]int)
}

// windowInterval is the fixed tumbling-window duration.
const windowInterval = 60 * time.Second

// RateLimitWindow is windowInterval exported for callers outside this
// package that schedule RateLimiter.ResetCounters (cmd/ghostbridge/serve.go).
const RateLimitWindow = windowInterval
