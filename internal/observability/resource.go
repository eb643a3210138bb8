package observability

import (
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// ResourceAttributes describes this engine process to both the trace and the metric
// exporters, so spans and instruments can be grouped by datastore and cache backend.
func (c Config) ResourceAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceNamespace("copybill"),
		attribute.String("copybill.result_cache", c.ResultCache),
	}
	if c.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(c.Version))
	}
	if c.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentName(c.Environment))
	}
	if c.Instance != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(c.Instance))
	}
	if c.Datastore != "" {
		attrs = append(attrs, attribute.String("copybill.datastore", c.Datastore))
	}
	return attrs
}
