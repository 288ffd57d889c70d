package zns

import (
	"crypto/ed25519"
	"testing"
	"time"
)

func TestIsValidDomain(t *testing.T) {
	v := NewValidator(nil)

	cases := []struct {
		domain string
		want   bool
	}{
		{"alice.ghost", true},
		{"bob.eth", true},
		{"payments.crypto", true},
		{"sandbox.test", true},
		{"", false},
		{".ghost", false},
		{"alice.", false},
		{"-alice.ghost", false},
		{"alice..ghost", false},
		{"alice.unsupported-tld", false},
	}
	for _, c := range cases {
		if got := v.IsValidDomain(c.domain); got != c.want {
			t.Errorf("IsValidDomain(%q) = %v, want %v", c.domain, got, c.want)
		}
	}
}

func TestGetDomainCategory(t *testing.T) {
	v := NewValidator(nil)

	cases := []struct {
		domain string
		want   Category
	}{
		{"alice.ghost", CategoryIdentity},
		{"node.bc", CategoryInfrastructure},
		{"bob.eth", CategoryENSBridge},
		{"payments.crypto", CategoryUnstoppable},
		{"sandbox.test", CategoryExperimental},
	}
	for _, c := range cases {
		got, ok := v.GetDomainCategory(c.domain)
		if !ok || got != c.want {
			t.Errorf("GetDomainCategory(%q) = (%v, %v), want (%v, true)", c.domain, got, ok, c.want)
		}
	}

	if _, ok := v.GetDomainCategory("nobody.example"); ok {
		t.Errorf("GetDomainCategory should reject an unsupported suffix")
	}
}

func TestValidateRecord(t *testing.T) {
	v := NewValidator(nil)

	priority := uint16(10)
	weight := uint16(5)
	port := uint16(443)

	cases := []struct {
		name   string
		record Record
		want   ValidationResult
	}{
		{"valid A", Record{Type: RecordA, Value: "192.168.1.1"}, ValidOK},
		{"invalid A", Record{Type: RecordA, Value: "999.1.1.1"}, ValidInvalidFormat},
		{"valid AAAA", Record{Type: RecordAAAA, Value: "::1"}, ValidOK},
		{"valid CNAME", Record{Type: RecordCNAME, Value: "target.ghost"}, ValidOK},
		{"invalid CNAME", Record{Type: RecordCNAME, Value: "not a domain"}, ValidInvalidFormat},
		{"valid MX", Record{Type: RecordMX, Priority: &priority, Target: "mail.ghost"}, ValidOK},
		{"missing MX priority", Record{Type: RecordMX, Target: "mail.ghost"}, ValidInvalidFormat},
		{"valid SRV", Record{Type: RecordSRV, Priority: &priority, Weight: &weight, Port: &port, Target: "svc.ghost"}, ValidOK},
		{"TXT too long", Record{Type: RecordTXT, Value: string(make([]byte, 256))}, ValidInvalidLength},
		{"valid CONTRACT", Record{Type: RecordCONTRACT, Value: "0x1234567890abcdef1234567890abcdef12345678"}, ValidOK},
		{"invalid CONTRACT", Record{Type: RecordCONTRACT, Value: "not-an-address"}, ValidInvalidFormat},
		{"unsupported type", Record{Type: "BOGUS"}, ValidUnsupportedType},
	}
	for _, c := range cases {
		if got := v.ValidateRecord(&c.record); got != c.want {
			t.Errorf("%s: ValidateRecord() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestVerifyDomainSignatureRoundTrip(t *testing.T) {
	v := NewValidator(nil)
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	dd := &DomainData{
		Domain:      "alice.ghost",
		Owner:       "0xabc",
		Records:     []Record{{Type: RecordA, Name: "alice.ghost", Value: "1.2.3.4", TTL: 300}},
		LastUpdated: time.Now(),
	}
	dd.Signature = ed25519.Sign(priv, canonicalDomainDataEncoding(dd))

	if !v.VerifyDomainSignature(dd, pub) {
		t.Fatalf("expected valid signature to verify")
	}

	dd.Records[0].Value = "tampered"
	if v.VerifyDomainSignature(dd, pub) {
		t.Fatalf("expected tampered record set to fail verification")
	}
}

func TestRateLimiterFixedWindow(t *testing.T) {
	rl := NewRateLimiter(2)

	if !rl.IsAllowed("c1") {
		t.Fatalf("1st call should be allowed")
	}
	if !rl.IsAllowed("c1") {
		t.Fatalf("2nd call should be allowed")
	}
	if rl.IsAllowed("c1") {
		t.Fatalf("3rd call within the same window should be rate limited")
	}

	rl.ResetCounters()
	if !rl.IsAllowed("c1") {
		t.Fatalf("call after ResetCounters should be allowed again")
	}
}

func TestRateLimiterIsPerClient(t *testing.T) {
	rl := NewRateLimiter(1)
	if !rl.IsAllowed("a") {
		t.Fatalf("client a's 1st call should be allowed")
	}
	if !rl.IsAllowed("b") {
		t.Fatalf("client b's 1st call should be allowed independently of a")
	}
	if rl.IsAllowed("a") {
		t.Fatalf("client a's 2nd call should be rate limited")
	}
}
