package gateway

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStatusCodeClass(t *testing.T) {
	cases := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{429, "4xx"},
		{500, "5xx"},
		{504, "5xx"},
	}
	for _, c := range cases {
		if got := statusCodeClass(c.code); got != c.want {
			t.Errorf("statusCodeClass(%d) = %q, want %q", c.code, got, c.want)
		}
	}
}

func TestGatewayMetricsObserveAndExposition(t *testing.T) {
	m := newGatewayMetrics()
	m.observe(TransportHTTP2, 200, 15*time.Millisecond)
	m.observe(TransportHTTP3, 500, 30*time.Millisecond)
	m.setConnectionsOpen(7)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)

	body := rr.Body.String()
	if !strings.Contains(body, "ghostbridge_gateway_requests_total") {
		t.Fatalf("expected requests_total to appear in the exposition, got:\n%s", body)
	}
	if !strings.Contains(body, `transport="http2"`) {
		t.Fatalf("expected an http2-labelled series, got:\n%s", body)
	}
	if !strings.Contains(body, "ghostbridge_gateway_connections_open 7") {
		t.Fatalf("expected the connections_open gauge to read 7, got:\n%s", body)
	}
}

func TestNewGatewayMetricsPerInstanceRegistry(t *testing.T) {
	// Each Gateway builds its own registry; constructing two must not panic
	// with "duplicate metrics collector registration".
	m1 := newGatewayMetrics()
	m2 := newGatewayMetrics()
	m1.observe(TransportHTTP2, 200, time.Millisecond)
	m2.observe(TransportHTTP2, 200, time.Millisecond)
}
