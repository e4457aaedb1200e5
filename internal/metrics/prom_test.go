package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	SetBuildInfo("1.0.0", "abc", "2024-01-01")

	before := testutil.ToFloat64(generations.WithLabelValues("timeout"))
	ObserveGeneration("timeout", 2*time.Second)
	if v := testutil.ToFloat64(generations.WithLabelValues("timeout")); v != before+1 {
		t.Fatalf("generations: %v", v)
	}

	RecordHealthCheck(true)
	if v := testutil.ToFloat64(backendUp); v != 1 {
		t.Fatalf("backend up: %v", v)
	}
	RecordHealthCheck(false)
	if v := testutil.ToFloat64(backendUp); v != 0 {
		t.Fatalf("backend down: %v", v)
	}

	updates := testutil.ToFloat64(backendURLUpdates)
	RecordBackendURLUpdate()
	if v := testutil.ToFloat64(backendURLUpdates); v != updates+1 {
		t.Fatalf("url updates: %v", v)
	}
	if v := testutil.ToFloat64(buildInfo.WithLabelValues("2024-01-01", "abc", "1.0.0")); v != 1 {
		t.Fatalf("build info: %v", v)
	}
	if n := testutil.CollectAndCount(generationDuration); n == 0 {
		t.Fatalf("expected duration series")
	}
}
