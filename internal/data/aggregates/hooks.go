package aggregates

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Hooks captures aggregate-level observability events.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}

type otelHooks struct {
	duration  metric.Float64Histogram
	conflicts metric.Int64Counter
	retries   metric.Int64Counter
}

// NewOTelHooks creates aggregate hooks recorded on the global meter provider.
// It falls back to no-op hooks if the instruments cannot be created.
func NewOTelHooks() Hooks {
	meter := otel.Meter("casedesk/aggregates")
	duration, err := meter.Float64Histogram("aggregate.operation.duration", metric.WithUnit("s"))
	if err != nil {
		return noopHooks{}
	}
	conflicts, err := meter.Int64Counter("aggregate.conflicts")
	if err != nil {
		return noopHooks{}
	}
	retries, err := meter.Int64Counter("aggregate.retries")
	if err != nil {
		return noopHooks{}
	}
	return &otelHooks{duration: duration, conflicts: conflicts, retries: retries}
}

func (h *otelHooks) ObserveOperation(name, status string, dur time.Duration) {
	h.duration.Record(context.Background(), dur.Seconds(), metric.WithAttributes(
		attribute.String("op", strings.TrimSpace(name)),
		attribute.String("status", strings.TrimSpace(status)),
	))
}

func (h *otelHooks) IncConflict(name string) {
	h.conflicts.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", strings.TrimSpace(name))))
}

func (h *otelHooks) IncRetry(name string) {
	h.retries.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", strings.TrimSpace(name))))
}
