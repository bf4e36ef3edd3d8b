package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/logger"
)

func TestSink_RecordsCounters(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	sink, err := NewSinkWithReader(ctx, reader)
	if err != nil {
		t.Fatalf("NewSinkWithReader failed: %v", err)
	}
	defer sink.Close(ctx)

	for i := 0; i < 3; i++ {
		_ = sink.ExperimentAssigned(ctx, domain.AssignmentEvent{ExperimentID: "pricing_v2", VariantID: "A", UserID: "u"})
	}
	_ = sink.VariantSet(ctx, "pricing_v2", "A")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s has unexpected type %T", m.Name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key("variant_id")); !ok || v.AsString() != "A" {
					t.Errorf("metric %s missing variant_id attribute", m.Name)
				}
				if dp.Attributes.HasValue(attribute.Key("user_id")) {
					t.Errorf("metric %s carries user_id", m.Name)
				}
				totals[m.Name] += dp.Value
			}
		}
	}

	if totals["mvariant_experiment_assigned_total"] != 3 {
		t.Errorf("expected 3 assignments, got %d", totals["mvariant_experiment_assigned_total"])
	}
	if totals["mvariant_experiment_variant_set_total"] != 1 {
		t.Errorf("expected 1 variant set, got %d", totals["mvariant_experiment_variant_set_total"])
	}
}

func TestNewSink_Disabled(t *testing.T) {
	if _, err := NewSink(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for disabled config")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("MVARIANT_OTEL_ENABLED", "true")
	t.Setenv("MVARIANT_OTEL_ENDPOINT", "collector:4317")
	t.Setenv("MVARIANT_OTEL_INSECURE", "1")
	t.Setenv("MVARIANT_OTEL_EXPORT_INTERVAL", "15s")

	cfg := LoadConfig()
	if !cfg.Enabled || !cfg.Insecure || cfg.Endpoint != "collector:4317" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.ExportInterval.Seconds() != 15 {
		t.Errorf("expected 15s interval, got %v", cfg.ExportInterval)
	}
}

func TestOpen_DegradesToNoOp(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"disabled", Config{}},
		{"enabled without endpoint", Config{Enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := Open(ctx, tt.cfg, logger.Nop())
			if _, ok := sink.(*NoOpSink); !ok {
				t.Fatalf("Open() = %T, want *NoOpSink", sink)
			}
			if err := sink.ExperimentAssigned(ctx, domain.AssignmentEvent{ExperimentID: "e"}); err != nil {
				t.Errorf("ExperimentAssigned() error = %v", err)
			}
			if err := sink.Close(ctx); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	}
}
