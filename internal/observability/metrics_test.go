package observability

import (
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestMetricsSnapshot(t *testing.T) {
	reader, shutdown := InitMetrics("casedesk-test")
	t.Cleanup(func() { _ = shutdown(t.Context()) })

	meter := otel.Meter("casedesk/test")
	conflicts, err := meter.Int64Counter("aggregate.conflicts")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	durations, err := meter.Float64Histogram("aggregate.operation.duration")
	if err != nil {
		t.Fatalf("histogram: %v", err)
	}
	conflicts.Add(t.Context(), 2, metric.WithAttributes(attribute.String("op", "task.save")))
	durations.Record(t.Context(), 0.5)
	durations.Record(t.Context(), 1.5)

	points, err := reader.Snapshot(t.Context())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	byName := map[string]MetricPoint{}
	for _, p := range points {
		byName[p.Name] = p
	}
	c := byName["aggregate.conflicts"]
	if c.Value != 2 || c.Attributes["op"] != "task.save" {
		t.Fatalf("conflicts point: %+v", c)
	}
	h := byName["aggregate.operation.duration"]
	if h.Count != 2 || h.Value != 2 {
		t.Fatalf("duration point: %+v", h)
	}
}
