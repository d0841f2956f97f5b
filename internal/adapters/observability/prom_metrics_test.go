package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ghalamif/TrailSync/internal/ports"
)

func useTestRegistry(t *testing.T) {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
}

func TestPromObsMetrics(t *testing.T) {
	useTestRegistry(t)
	obs := NewPromObs(nil)

	obs.IncCounter("trail_points_collected_total", 8)
	if got := testutil.ToFloat64(obs.counters["trail_points_collected_total"]); got != 8 {
		t.Fatalf("expected collected counter 8, got %f", got)
	}

	obs.IncCounter("trail_sync_errors_total", 1)
	if got := testutil.ToFloat64(obs.counters["trail_sync_errors_total"]); got != 1 {
		t.Fatalf("expected sync error counter 1, got %f", got)
	}

	obs.SetGauge("trail_buffer_length", 5)
	if got := testutil.ToFloat64(obs.gauges["trail_buffer_length"]); got != 5 {
		t.Fatalf("expected buffer gauge 5, got %f", got)
	}

	obs.ObserveLatency("trail_sync_latency_seconds", 0.2)
	hCollector := obs.histos["trail_sync_latency_seconds"].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	obs.IncCounter("unknown_metric", 1)
}

func TestPromObsLogsThroughZap(t *testing.T) {
	useTestRegistry(t)
	core, logs := observer.New(zap.InfoLevel)
	obs := NewPromObs(zap.New(core))

	obs.LogInfo("session_started", ports.Field{Key: "session_id", Value: "abc"})
	obs.LogError("sync_batch_failed", errors.New("timeout"), ports.Field{Key: "points", Value: 5})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Message != "session_started" || entries[0].ContextMap()["session_id"] != "abc" {
		t.Fatalf("unexpected info entry: %+v", entries[0])
	}
	if entries[1].Level != zap.WarnLevel || entries[1].ContextMap()["error"] != "timeout" {
		t.Fatalf("unexpected error entry: %+v", entries[1])
	}
}

func TestNewPromObsOnIsolatedRegistries(t *testing.T) {
	a := NewPromObsOn(prometheus.NewRegistry(), nil)
	b := NewPromObsOn(prometheus.NewRegistry(), nil)

	a.IncCounter("trail_fixes_total", 2)
	if got := testutil.ToFloat64(b.counters["trail_fixes_total"]); got != 0 {
		t.Fatalf("expected registries to be independent, got %f", got)
	}
	if a.Logger() == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected debug level enabled")
	}

	if _, err := NewLogger("loud", "json"); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if _, err := NewLogger("info", "xml"); err == nil {
		t.Fatalf("expected invalid format error")
	}
}
