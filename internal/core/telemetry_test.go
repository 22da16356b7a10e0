package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"pharmacy-retail/internal/core"
)

func counterPoints(t *testing.T, reader *sdkmetric.ManualReader, name string) []metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			return sum.DataPoints
		}
	}
	return nil
}

func TestTelemetry_ScanOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	svc := core.NewOrderService(f.store, core.NewCodeGenerator(0, 0), nil, core.WithTelemetry(tp, mp))
	f.store.SetStock(f.key(f.central, f.ibuprofen, nil), 5, 0)

	first, err := svc.CreateOrder(ctx, f.customer, core.CreateOrderRequest{BranchID: f.central.ID, Items: []core.OrderItemInput{line(f.ibuprofen, 3)}})
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, f.customer, core.CreateOrderRequest{BranchID: f.central.ID, Items: []core.OrderItemInput{line(f.ibuprofen, 3)}})
	require.NoError(t, err)

	_, err = svc.ScanOrder(ctx, f.cashier, first.Barcode)
	require.NoError(t, err)
	_, err = svc.ScanOrder(ctx, f.cashier, second.Barcode)
	require.ErrorIs(t, err, core.ErrInsufficientStock)

	rejected := counterPoints(t, reader, "orders.scan_rejected")
	require.Len(t, rejected, 1)
	assert.Equal(t, int64(1), rejected[0].Value)
	reason, ok := rejected[0].Attributes.Value("reason")
	require.True(t, ok)
	assert.Equal(t, "INSUFFICIENT_STOCK", reason.AsString())

	created := counterPoints(t, reader, "orders.created")
	require.Len(t, created, 1)
	assert.Equal(t, int64(2), created[0].Value)
	confirmed := counterPoints(t, reader, "orders.confirmed")
	require.Len(t, confirmed, 1)
	assert.Equal(t, int64(1), confirmed[0].Value)

	var scans []sdktrace.ReadOnlySpan
	for _, s := range spans.Ended() {
		if s.Name() == "orders.scan" {
			scans = append(scans, s)
		}
	}
	require.Len(t, scans, 2)
	assert.Equal(t, codes.Unset, scans[0].Status().Code)
	assert.Equal(t, codes.Error, scans[1].Status().Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", scans[1].Status().Description)
	require.NotEmpty(t, scans[1].Events(), "the error is recorded as a span event")
	assert.Equal(t, "exception", scans[1].Events()[0].Name)
}

func TestTelemetry_RejectionReasonFollowsErrorKind(t *testing.T) {
	f := newFixture(t)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	svc := core.NewOrderService(f.store, core.NewCodeGenerator(0, 0), nil, core.WithTelemetry(nil, mp))
	_, err := svc.ScanOrder(context.Background(), f.cashier, "ZZZZZZZZZZ")
	require.ErrorIs(t, err, core.ErrNotFound)

	points := counterPoints(t, reader, "orders.scan_rejected")
	require.Len(t, points, 1)
	reason, ok := points[0].Attributes.Value("reason")
	require.True(t, ok)
	assert.Equal(t, "NOT_FOUND", reason.AsString())
}
