package zns

import (
	"fmt"
	"sort"
	"strings"
)

// PrometheusText renders snap as Prometheus's text exposition format, with
// HELP/TYPE headers. This module hand-renders the text format rather than
// using a prometheus.Registry because Snapshot is already a frozen
// point-in-time copy (the registry's pull model expects live Collectors);
// prometheus/client_golang is still wired in for the gateway's own
// listener-level metrics (see internal/gateway).
func PrometheusText(snap Snapshot) string {
	var b strings.Builder

	writeCounter := func(name, help string, value uint64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, value)
	}
	writeGauge := func(name, help string, value float64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n", name, help, name, name, value)
	}

	writeCounter("ghostbridge_zns_queries_total", "Total ZNS resolve queries.", snap.TotalQueries)
	writeCounter("ghostbridge_zns_queries_successful_total", "Successful ZNS resolve queries.", snap.SuccessfulQueries)
	writeCounter("ghostbridge_zns_queries_failed_total", "Failed ZNS resolve queries.", snap.FailedQueries)
	writeCounter("ghostbridge_zns_cache_hits_total", "ZNS cache hits.", snap.CacheHits)
	writeCounter("ghostbridge_zns_cache_misses_total", "ZNS cache misses.", snap.CacheMisses)

	writeGauge("ghostbridge_zns_qps", "Moving-average queries per second.", snap.QPS)
	writeGauge("ghostbridge_zns_avg_resolution_ms", "Moving-average resolution time in milliseconds.", snap.AvgResolutionMS)
	writeGauge("ghostbridge_zns_cache_hit_rate", "Moving-average cache hit rate.", snap.CacheHitRate)
	writeGauge("ghostbridge_zns_error_rate", "Moving-average error rate.", snap.ErrorRate)
	writeGauge("ghostbridge_zns_memory_usage_bytes", "Resident memory usage.", float64(snap.MemoryUsageBytes))
	writeGauge("ghostbridge_zns_cpu_percent", "Process CPU usage percent.", snap.CPUPercent)
	writeGauge("ghostbridge_zns_open_connections", "Currently open transport connections.", float64(snap.OpenConnections))
	writeGauge("ghostbridge_zns_active_subscriptions", "Currently active subscriptions.", float64(snap.ActiveSubscriptions))
	writeGauge("ghostbridge_zns_uptime_seconds", "Process uptime in seconds.", snap.UptimeSeconds)

	b.WriteString("# HELP ghostbridge_zns_resolver_queries_total Queries handled per upstream resolver.\n")
	b.WriteString("# TYPE ghostbridge_zns_resolver_queries_total counter\n")
	for _, source := range sortedSources(snap.PerResolver) {
		fmt.Fprintf(&b, "ghostbridge_zns_resolver_queries_total{resolver=%q} %d\n", source, snap.PerResolver[source])
	}

	b.WriteString("# HELP ghostbridge_zns_errors_total Errors by error code.\n")
	b.WriteString("# TYPE ghostbridge_zns_errors_total counter\n")
	for _, code := range sortedErrorCodes(snap.PerErrorKind) {
		fmt.Fprintf(&b, "ghostbridge_zns_errors_total{code=%q} %d\n", code, snap.PerErrorKind[code])
	}

	b.WriteString("# HELP ghostbridge_zns_tld_queries_total Queries by TLD.\n")
	b.WriteString("# TYPE ghostbridge_zns_tld_queries_total counter\n")
	for _, tld := range sortedStrings(snap.PerTLD) {
		fmt.Fprintf(&b, "ghostbridge_zns_tld_queries_total{tld=%q} %d\n", tld, snap.PerTLD[tld])
	}

	return b.String()
}

func sortedSources(m map[ResolutionSource]uint64) []ResolutionSource {
	out := make([]ResolutionSource, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedErrorCodes(m map[ErrorCode]uint64) []ErrorCode {
	out := make([]ErrorCode, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedStrings(m map[string]uint64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
