package observability

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

// MetricsReader exposes in-process metrics (aggregate write timings,
// conflicts, retries) to the ops endpoint.
type MetricsReader struct {
	reader *metric.ManualReader
}

type MetricPoint struct {
	Scope      string            `json:"scope"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value"`
	Count      uint64            `json:"count,omitempty"`
}

// InitMetrics installs a meter provider backed by a manual reader as the
// global provider.
func InitMetrics(serviceName string) (*MetricsReader, func(context.Context) error) {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = "casedesk"
	}
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(
		metric.WithReader(reader),
		metric.WithResource(resource.NewSchemaless(semconv.ServiceNameKey.String(serviceName))),
	)
	otel.SetMeterProvider(mp)
	return &MetricsReader{reader: reader}, mp.Shutdown
}

// Snapshot collects the current value of every instrument. Histograms report
// their sum as Value and the sample count as Count.
func (m *MetricsReader) Snapshot(ctx context.Context) ([]MetricPoint, error) {
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	var out []MetricPoint
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			base := MetricPoint{Scope: sm.Scope.Name, Name: md.Name}
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					p := base
					p.Attributes, p.Value = attrs(dp.Attributes.ToSlice()), float64(dp.Value)
					out = append(out, p)
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					p := base
					p.Attributes, p.Value = attrs(dp.Attributes.ToSlice()), dp.Value
					out = append(out, p)
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					p := base
					p.Attributes, p.Value, p.Count = attrs(dp.Attributes.ToSlice()), dp.Sum, dp.Count
					out = append(out, p)
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func attrs(kvs []attribute.KeyValue) map[string]string {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}
