package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSearch(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveSearch("miss", 2*time.Millisecond, 1000, 3)
	m.ObserveSearch("hit", time.Millisecond, 1000, 0)

	if got := testutil.ToFloat64(m.CandidatesScanned); got != 1000 {
		t.Errorf("scanned = %v, want 1000 (cache hits scan nothing)", got)
	}
	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("match")); got != 1 {
		t.Errorf("match outcomes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("zero_result")); got != 1 {
		t.Errorf("zero_result outcomes = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSearch("miss", time.Millisecond, 1, 1)
}
