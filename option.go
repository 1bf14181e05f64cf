package transit

import (
	"log/slog"
	"time"

	eventtransport "github.com/rbaliyan/event/v3/transport"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/docport/transit/blob"
	"github.com/docport/transit/store"
)

const (
	// DefaultMaxConcurrentDispatches is the default cap on in-flight
	// transport sends.
	DefaultMaxConcurrentDispatches = 10

	// DefaultShutdownTimeout is the default time Close waits for in-flight
	// dispatches to finish.
	DefaultShutdownTimeout = 30 * time.Second

	// MinShutdownTimeout is the minimum allowed shutdown timeout.
	MinShutdownTimeout = 1 * time.Second

	// DefaultServiceName is used for event bus, tracer and meter names
	// unless overridden with WithServiceName.
	DefaultServiceName = "transit"
)

// EventPublishFailureFunc is called when an event fails to publish.
// The eventName is the name of the event (e.g., "DocumentReceived"), and err
// is the publish error.
type EventPublishFailureFunc func(eventName string, err error)

type options struct {
	store           store.Store
	transport       Transport
	registry        store.ReceiverRegistry
	payloadStore    blob.Store
	evidenceStore   blob.Store
	logger          *slog.Logger
	serviceName     string
	maxDispatches   int64
	shutdownTimeout time.Duration

	eventTransport        eventtransport.Transport
	redisClient           redis.UniversalClient
	eventErrorsFatal      bool
	onEventPublishFailure EventPublishFailureFunc

	tracingEnabled bool
	metricsEnabled bool
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures the service.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		logger:          slog.Default(),
		serviceName:     DefaultServiceName,
		maxDispatches:   DefaultMaxConcurrentDispatches,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.registry == nil {
		// A store that implements ReceiverRegistry doubles as the default
		// registry for self-send reconciliation.
		if r, ok := o.store.(store.ReceiverRegistry); ok {
			o.registry = r
		}
	}
	if o.shutdownTimeout < MinShutdownTimeout {
		o.shutdownTimeout = MinShutdownTimeout
	}
	if o.maxDispatches < 1 {
		o.maxDispatches = 1
	}

	// Ensure event failure callback is always set
	if o.onEventPublishFailure == nil {
		o.onEventPublishFailure = func(eventName string, err error) {
			o.logger.Error("failed to publish event", "event", eventName, "error", err)
		}
	}

	return o
}

// safeEventPublishFailure calls the event failure callback with panic recovery.
// If the callback panics, the panic is logged and suppressed to prevent
// cascading failures.
func (o *options) safeEventPublishFailure(eventName string, err error) {
	if o.onEventPublishFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in event publish failure handler",
				"event", eventName,
				"original_error", err,
				"panic", r,
			)
		}
	}()
	o.onEventPublishFailure(eventName, err)
}

// WithStore sets the backing transmission record store. Required.
func WithStore(s store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithTransport sets the outbound document transport. Dispatch operations
// fail with ErrTransportRequired when no transport is configured.
func WithTransport(t Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithReceiverRegistry sets the registry consulted during self-send
// reconciliation. Defaults to the store when it implements
// store.ReceiverRegistry.
func WithReceiverRegistry(r store.ReceiverRegistry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithPayloadStore sets the blob store for document payloads.
func WithPayloadStore(s blob.Store) Option {
	return func(o *options) {
		o.payloadStore = s
	}
}

// WithEvidenceStore sets the blob store for transport evidence receipts.
func WithEvidenceStore(s blob.Store) Option {
	return func(o *options) {
		o.evidenceStore = s
	}
}

// WithBlobStore sets one blob store for both payloads and evidence.
func WithBlobStore(s blob.Store) Option {
	return func(o *options) {
		o.payloadStore = s
		o.evidenceStore = s
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithServiceName sets the name used for the event bus, tracer and meter.
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithMaxConcurrentDispatches caps the number of in-flight transport sends.
func WithMaxConcurrentDispatches(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxDispatches = int64(n)
		}
	}
}

// WithShutdownTimeout sets how long Close waits for in-flight dispatches.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithEventTransport sets a custom event transport. Takes precedence over
// WithRedisEvents.
func WithEventTransport(t eventtransport.Transport) Option {
	return func(o *options) {
		o.eventTransport = t
	}
}

// WithRedisEvents publishes service events through redis so subscribers in
// other processes receive them.
func WithRedisEvents(client redis.UniversalClient) Option {
	return func(o *options) {
		o.redisClient = client
	}
}

// WithEventErrorsFatal makes event publish failures abort the operation
// that raised them. By default publish failures are logged and the
// operation succeeds.
func WithEventErrorsFatal() Option {
	return func(o *options) {
		o.eventErrorsFatal = true
	}
}

// WithEventPublishFailureHandler registers a callback invoked on event
// publish failures when they are not fatal.
func WithEventPublishFailureHandler(fn EventPublishFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onEventPublishFailure = fn
		}
	}
}

// WithTracing enables OpenTelemetry tracing using the global tracer
// provider.
func WithTracing() Option {
	return func(o *options) {
		o.tracingEnabled = true
	}
}

// WithMetrics enables OpenTelemetry metrics using the global meter
// provider.
func WithMetrics() Option {
	return func(o *options) {
		o.metricsEnabled = true
	}
}

// WithOTel enables both tracing and metrics.
func WithOTel() Option {
	return func(o *options) {
		o.tracingEnabled = true
		o.metricsEnabled = true
	}
}

// WithTracerProvider enables tracing with a specific tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracingEnabled = true
		o.tracerProvider = tp
	}
}

// WithMeterProvider enables metrics with a specific meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.metricsEnabled = true
		o.meterProvider = mp
	}
}
