package gateway

import "testing"

func TestKeyIsStableAndDistinguishesInputs(t *testing.T) {
	k1 := Key("/zns/resolve", []byte(`{"domain":"alice.ghost"}`))
	k2 := Key("/zns/resolve", []byte(`{"domain":"alice.ghost"}`))
	if k1 != k2 {
		t.Fatalf("expected Key to be deterministic for identical inputs")
	}

	k3 := Key("/zns/resolve", []byte(`{"domain":"bob.ghost"}`))
	if k1 == k3 {
		t.Fatalf("expected different bodies to hash to different keys")
	}

	k4 := Key("/zns/status", []byte(`{"domain":"alice.ghost"}`))
	if k1 == k4 {
		t.Fatalf("expected different paths to hash to different keys")
	}
}

func TestResponseCachePutGetRoundTrip(t *testing.T) {
	rc := NewResponseCache(10, 1<<20)
	key := Key("/zns/resolve", []byte("body"))

	if _, ok := rc.Get(key); ok {
		t.Fatalf("expected a miss before any Put")
	}

	rc.Put(key, []byte(`{"ok":true}`))
	got, ok := rc.Get(key)
	if !ok {
		t.Fatalf("expected a hit after Put")
	}
	if string(got) != `{"ok":true}` {
		t.Fatalf("Get() = %q", got)
	}
}

func TestResponseCacheRejectsOversizedEntry(t *testing.T) {
	rc := NewResponseCache(10, 4)
	key := Key("/zns/resolve", []byte("body"))
	rc.Put(key, []byte("this is far larger than the byte budget"))
	if _, ok := rc.Get(key); ok {
		t.Fatalf("expected an entry larger than maxBytes to be rejected outright")
	}
}

func TestResponseCacheEvictsUnderByteBudget(t *testing.T) {
	entry := []byte("0123456789") // 10 bytes
	rc := NewResponseCache(100, int64(len(entry))+5)

	rc.Put(Key("/a", nil), entry)
	rc.Put(Key("/b", nil), entry)
	rc.Put(Key("/c", nil), entry)

	count := 0
	for _, p := range []string{"/a", "/b", "/c"} {
		if _, ok := rc.Get(Key(p, nil)); ok {
			count++
		}
	}
	if count > 1 {
		t.Fatalf("expected the byte budget to keep at most 1 of 3 oversubscribed entries, got %d", count)
	}
}
