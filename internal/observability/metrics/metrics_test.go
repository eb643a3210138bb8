package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsUnboundedLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("source", "legacy"),
		attribute.String("client_id", "456"),
		attribute.String("device_id", "aabbcc"),
		attribute.String("status", "ok"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("source"), attrs[0].Key)
	assert.Equal(t, attribute.Key("status"), attrs[1].Key)
}

func TestRecordSourceFailure(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "copybill"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordSourceFailure(ctx, "legacy")
	m.RecordSourceFailure(ctx, "legacy")
	m.RecordOperation(ctx, "client_debt", 15*time.Millisecond, errors.New("boom"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "copybill_reading_source_failures_total" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), total)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordDeviceFailure(context.Background(), "data_unavailable")
	m.RecordResultCache(context.Background(), "hit")
}
