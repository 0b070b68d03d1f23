package instrumentation

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNew_NilProviderUsesNoop(t *testing.T) {
	m, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	// Should not panic
	m.RecordDecision(context.Background(), "api:auth", true)
	m.RecordJob(context.Background(), "enqueued", "data_export")
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordDecision(ctx, "c", false)
	m.RecordFailOpen(ctx, "c")
	m.RecordBlock(ctx, "c")
	m.RecordJob(ctx, "completed", "t")
	m.RecordDiscard(ctx, "t", "expired")
	m.RecordSecurityEvent(ctx, "malicious_request")
}

func TestMetrics_RecordsToProvider(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(ctx) }()

	m, err := New(provider)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.RecordDecision(ctx, "api:auth", true)
	m.RecordDecision(ctx, "api:auth", false)
	m.RecordSecurityEvent(ctx, "malicious_request")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[md.Name] += dp.Value
			}
		}
	}

	if totals["ratelimit.decisions.total"] != 2 {
		t.Fatalf("expected 2 decisions, got %d", totals["ratelimit.decisions.total"])
	}
	if totals["security.events.total"] != 1 {
		t.Fatalf("expected 1 security event, got %d", totals["security.events.total"])
	}
}
