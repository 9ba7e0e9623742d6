package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountersByEntity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CacheHit("invoices")
	m.CacheHit("invoices")
	m.CacheMiss("invoices")
	m.ValidationRejected("customers")
	m.QueryTimeout("invoices")
	m.ObserveQuery("invoices", 20*time.Millisecond)

	if got := testutil.ToFloat64(m.cacheHits.WithLabelValues("invoices")); got != 2 {
		t.Errorf("cache hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cacheMisses.WithLabelValues("invoices")); got != 1 {
		t.Errorf("cache misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rejections.WithLabelValues("customers")); got != 1 {
		t.Errorf("rejections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.timeouts.WithLabelValues("invoices")); got != 1 {
		t.Errorf("timeouts = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.queryDuration); got != 1 {
		t.Errorf("query duration series = %v, want 1", got)
	}
}
