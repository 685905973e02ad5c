package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "record_anchor", true, 20*time.Millisecond)
	rec.Observe(ctx, "record_anchor", true, 30*time.Millisecond)
	rec.Observe(ctx, "record_anchor", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	snap := rec.Snapshot()
	if got := snap.DurationsMS["record_anchor"]; got != 55 {
		t.Fatalf("expected 55ms total, got %g", got)
	}
	if snap.Results["record_anchor"]["success"] != 2 || snap.Results["record_anchor"]["error"] != 1 {
		t.Fatalf("unexpected result counters: %+v", snap.Results)
	}
	if _, ok := snap.Results[""]; ok {
		t.Fatalf("expected empty operation to be ignored")
	}
	if rec.Name() == "" {
		t.Fatalf("expected generated expvar name")
	}
}

func TestExpvarMetricsSnapshotIsDetached(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "op", true, time.Millisecond)

	snap := rec.Snapshot()
	snap.DurationsMS["op"] = 999
	snap.Results["op"]["success"] = 999

	fresh := rec.Snapshot()
	if fresh.DurationsMS["op"] == 999 || fresh.Results["op"]["success"] == 999 {
		t.Fatalf("expected snapshot mutations not to leak back")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()

	rec.Observe(ctx, "run_projection", true, 120*time.Millisecond)
	rec.Observe(ctx, "run_projection", false, 10*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	if !names["growthcore_operation_duration_seconds"] || !names["growthcore_operation_results_total"] {
		t.Fatalf("expected both collectors registered, got %v", names)
	}
}

func TestPrometheusMetricsRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetricsRecorder(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestZapLoggerForwardsKeyValues(t *testing.T) {
	obs, logs := observer.New(zap.DebugLevel)
	logger := NewZapLogger(zap.New(obs))

	logger.Info("recomputed assimilation", "slot_id", "s1", "rows", 42)
	logger.Error("recompute failed", "slot_id", "s2")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if entries[0].Message != "recomputed assimilation" {
		t.Fatalf("unexpected message %q", entries[0].Message)
	}
	fields := entries[0].ContextMap()
	if fields["slot_id"] != "s1" {
		t.Fatalf("expected structured slot_id field, got %v", fields)
	}
	if entries[1].Level != zap.ErrorLevel {
		t.Fatalf("expected error level, got %v", entries[1].Level)
	}
}

func TestNewZapLoggerNilIsSafe(t *testing.T) {
	logger := NewZapLogger(nil)
	logger.Debug("quiet")
	logger.Warn("still quiet")
}
