package transit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/docport/transit"
)

// otelInstrumentation holds OpenTelemetry instrumentation for the transit service.
type otelInstrumentation struct {
	enabled bool

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool

	// Record operations
	receiveLatency metric.Float64Histogram
	receiveCount   metric.Int64Counter
	receiveErrors  metric.Int64Counter
	submitLatency  metric.Float64Histogram
	submitCount    metric.Int64Counter
	submitErrors   metric.Int64Counter
	searchLatency  metric.Float64Histogram
	searchCount    metric.Int64Counter
	searchErrors   metric.Int64Counter

	// Delivery operations
	dispatchLatency  metric.Float64Histogram
	dispatchCount    metric.Int64Counter
	dispatchErrors   metric.Int64Counter
	deliverLatency   metric.Float64Histogram
	deliverCount     metric.Int64Counter
	deliverErrors    metric.Int64Counter
	reconcileLatency metric.Float64Histogram
	reconcileCount   metric.Int64Counter
	reconcileErrors  metric.Int64Counter
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}

	if !o.enabled {
		return o, nil
	}

	// Initialize tracer
	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	// Initialize metrics
	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error

	// Receive metrics
	o.receiveLatency, err = meter.Float64Histogram(
		"transit.receive.duration",
		metric.WithDescription("Duration of receive operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.receiveCount, err = meter.Int64Counter(
		"transit.receive.count",
		metric.WithDescription("Number of inbound records created"),
	)
	if err != nil {
		return err
	}

	o.receiveErrors, err = meter.Int64Counter(
		"transit.receive.errors",
		metric.WithDescription("Number of receive errors"),
	)
	if err != nil {
		return err
	}

	// Submit metrics
	o.submitLatency, err = meter.Float64Histogram(
		"transit.submit.duration",
		metric.WithDescription("Duration of submit operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.submitCount, err = meter.Int64Counter(
		"transit.submit.count",
		metric.WithDescription("Number of outbound records submitted"),
	)
	if err != nil {
		return err
	}

	o.submitErrors, err = meter.Int64Counter(
		"transit.submit.errors",
		metric.WithDescription("Number of submit errors"),
	)
	if err != nil {
		return err
	}

	// Search metrics
	o.searchLatency, err = meter.Float64Histogram(
		"transit.search.duration",
		metric.WithDescription("Duration of search operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.searchCount, err = meter.Int64Counter(
		"transit.search.count",
		metric.WithDescription("Number of search operations"),
	)
	if err != nil {
		return err
	}

	o.searchErrors, err = meter.Int64Counter(
		"transit.search.errors",
		metric.WithDescription("Number of search errors"),
	)
	if err != nil {
		return err
	}

	// Dispatch metrics
	o.dispatchLatency, err = meter.Float64Histogram(
		"transit.dispatch.duration",
		metric.WithDescription("Duration of dispatch operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.dispatchCount, err = meter.Int64Counter(
		"transit.dispatch.count",
		metric.WithDescription("Number of dispatch attempts"),
	)
	if err != nil {
		return err
	}

	o.dispatchErrors, err = meter.Int64Counter(
		"transit.dispatch.errors",
		metric.WithDescription("Number of dispatch errors"),
	)
	if err != nil {
		return err
	}

	// Deliver metrics
	o.deliverLatency, err = meter.Float64Histogram(
		"transit.deliver.duration",
		metric.WithDescription("Duration of delivery recording operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.deliverCount, err = meter.Int64Counter(
		"transit.deliver.count",
		metric.WithDescription("Number of deliveries recorded"),
	)
	if err != nil {
		return err
	}

	o.deliverErrors, err = meter.Int64Counter(
		"transit.deliver.errors",
		metric.WithDescription("Number of delivery recording errors"),
	)
	if err != nil {
		return err
	}

	// Reconcile metrics
	o.reconcileLatency, err = meter.Float64Histogram(
		"transit.reconcile.duration",
		metric.WithDescription("Duration of self-send reconciliation operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.reconcileCount, err = meter.Int64Counter(
		"transit.reconcile.count",
		metric.WithDescription("Number of reconciliation operations"),
	)
	if err != nil {
		return err
	}

	o.reconcileErrors, err = meter.Int64Counter(
		"transit.reconcile.errors",
		metric.WithDescription("Number of reconciliation errors"),
	)
	if err != nil {
		return err
	}

	return nil
}

// startSpan starts a new span if tracing is enabled.
// Caller should invoke the returned func with the operation's error when done.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// recordReceive records receive operation metrics.
func (o *otelInstrumentation) recordReceive(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.receiveLatency.Record(ctx, duration.Seconds())
	o.receiveCount.Add(ctx, 1)
	if err != nil {
		o.receiveErrors.Add(ctx, 1)
	}
}

// recordSubmit records submit operation metrics.
func (o *otelInstrumentation) recordSubmit(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.submitLatency.Record(ctx, duration.Seconds())
	o.submitCount.Add(ctx, 1)
	if err != nil {
		o.submitErrors.Add(ctx, 1)
	}
}

// recordSearch records search operation metrics.
func (o *otelInstrumentation) recordSearch(ctx context.Context, duration time.Duration, resultCount int, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Int("result_count", resultCount),
	)

	o.searchLatency.Record(ctx, duration.Seconds(), attrs)
	o.searchCount.Add(ctx, 1, attrs)
	if err != nil {
		o.searchErrors.Add(ctx, 1, attrs)
	}
}

// recordDispatch records dispatch operation metrics.
func (o *otelInstrumentation) recordDispatch(ctx context.Context, duration time.Duration, remoteHost string, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("remote_host", remoteHost),
	)

	o.dispatchLatency.Record(ctx, duration.Seconds(), attrs)
	o.dispatchCount.Add(ctx, 1, attrs)
	if err != nil {
		o.dispatchErrors.Add(ctx, 1, attrs)
	}
}

// recordDeliver records delivery recording metrics.
func (o *otelInstrumentation) recordDeliver(ctx context.Context, duration time.Duration, direction string, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("direction", direction),
	)

	o.deliverLatency.Record(ctx, duration.Seconds(), attrs)
	o.deliverCount.Add(ctx, 1, attrs)
	if err != nil {
		o.deliverErrors.Add(ctx, 1, attrs)
	}
}

// recordReconcile records self-send reconciliation metrics.
func (o *otelInstrumentation) recordReconcile(ctx context.Context, duration time.Duration, cloned bool, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("cloned", cloned),
	)

	o.reconcileLatency.Record(ctx, duration.Seconds(), attrs)
	o.reconcileCount.Add(ctx, 1, attrs)
	if err != nil {
		o.reconcileErrors.Add(ctx, 1, attrs)
	}
}
