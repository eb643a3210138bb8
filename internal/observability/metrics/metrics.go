package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
	// Resource describes the engine process on every exported series.
	Resource []attribute.KeyValue
}

// Metrics exposes engine-level instruments.
type Metrics struct {
	sourceFailures     metric.Int64Counter
	deviceComputations metric.Int64Counter
	deviceFailures     metric.Int64Counter
	operationDuration  metric.Float64Histogram
	resultCache        metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(resource.NewWithAttributes(semconv.SchemaURL, cfg.Resource...)),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the engine instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "copybill"
	}
	meter := provider.Meter(name)

	sourceFailures, err := meter.Int64Counter("copybill_reading_source_failures_total")
	if err != nil {
		return nil, err
	}
	deviceComputations, err := meter.Int64Counter("copybill_device_computations_total")
	if err != nil {
		return nil, err
	}
	deviceFailures, err := meter.Int64Counter("copybill_device_failures_total")
	if err != nil {
		return nil, err
	}
	operationDuration, err := meter.Float64Histogram("copybill_operation_duration_ms")
	if err != nil {
		return nil, err
	}
	resultCache, err := meter.Int64Counter("copybill_result_cache_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		sourceFailures:     sourceFailures,
		deviceComputations: deviceComputations,
		deviceFailures:     deviceFailures,
		operationDuration:  operationDuration,
		resultCache:        resultCache,
	}, nil
}

// NewNoop returns instruments bound to a noop provider, for tests and tools.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordSourceFailure counts a reading source that could not be queried.
func (m *Metrics) RecordSourceFailure(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.sourceFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDeviceComputation counts a per-device consumption result by status.
func (m *Metrics) RecordDeviceComputation(ctx context.Context, convention, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("convention", strings.TrimSpace(convention)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.deviceComputations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDeviceFailure counts a device excluded from an aggregate.
func (m *Metrics) RecordDeviceFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.deviceFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOperation records the duration of a billing operation.
func (m *Metrics) RecordOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", outcome),
	)
	m.operationDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordResultCache counts result cache lookups ("hit", "miss", "error").
func (m *Metrics) RecordResultCache(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.resultCache.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// client_id and device_id are deliberately absent: both are unbounded.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"source":      {},
	"convention":  {},
	"status":      {},
	"reason":      {},
	"operation":   {},
	"outcome":     {},
	"result":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
