package core

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "pharmacy-retail/core"

// Option configures an OrderService.
type Option func(*orderService)

// WithTelemetry sends spans to tp and order counters to mp instead of the
// global providers. Nil arguments keep the global one.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(s *orderService) {
		if tp != nil {
			s.tracer = tp.Tracer(instrumentationName)
		}
		if mp != nil {
			s.metrics = newOrderMetrics(mp.Meter(instrumentationName))
		}
	}
}

type orderMetrics struct {
	created      metric.Int64Counter
	confirmed    metric.Int64Counter
	cancelled    metric.Int64Counter
	scanRejected metric.Int64Counter
}

func newOrderMetrics(meter metric.Meter) orderMetrics {
	return orderMetrics{
		created:      counter(meter, "orders.created", "Orders created"),
		confirmed:    counter(meter, "orders.confirmed", "Orders confirmed by scan"),
		cancelled:    counter(meter, "orders.cancelled", "Orders cancelled"),
		scanRejected: counter(meter, "orders.scan_rejected", "Scans rejected, by reason"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

func (s *orderService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span, then ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err).String())
	}
	span.End()
}
