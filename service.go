package transit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"golang.org/x/sync/semaphore"

	"github.com/docport/transit/blob"
	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// Type aliases for commonly used store types.
// These allow users to work with the transit package without importing store
// directly.
type (
	SearchParams = store.SearchParams
	Direction    = store.Direction
)

// Re-exported direction constants.
const (
	DirectionIn  = store.DirectionIn
	DirectionOut = store.DirectionOut
)

// ServiceHealth provides health and state information about the service.
type ServiceHealth interface {
	// IsConnected returns true if the service is connected and ready.
	IsConnected() bool
}

// RecordReader provides service-wide record retrieval, unscoped by account.
type RecordReader interface {
	// Record retrieves a record by message number.
	Record(ctx context.Context, n ident.MessageNumber) (*store.TransmissionRecord, error)
	// RecordByReceptionID retrieves the record with the given direction and
	// reception id.
	RecordByReceptionID(ctx context.Context, direction Direction, id ident.ReceptionID) (*store.TransmissionRecord, error)
	// RecordsByReceptionID retrieves every record carrying the reception id,
	// in both directions.
	RecordsByReceptionID(ctx context.Context, id ident.ReceptionID) ([]store.TransmissionRecord, error)
	// UnattributedRecords lists records not yet attributed to any account.
	UnattributedRecords(ctx context.Context) ([]store.TransmissionRecord, error)
}

// Dispatcher drives outbound delivery.
type Dispatcher interface {
	// Dispatch sends one queued entry through the transport, records the
	// delivery and acknowledges the queue entry.
	Dispatch(ctx context.Context, id store.QueueID) error
	// DispatchQueued dispatches every entry currently in QUEUED state.
	DispatchQueued(ctx context.Context) (*DispatchResult, error)
	// RecordOutboundDelivery persists a delivery receipt obtained outside
	// Dispatch, e.g. by an external sender process.
	RecordOutboundDelivery(ctx context.Context, n ident.MessageNumber, receipt *DeliveryReceipt) error
}

// QueueAdmin provides operator access to the delivery queue.
type QueueAdmin interface {
	// QueueEntry retrieves a queue entry by queue id.
	QueueEntry(ctx context.Context, id store.QueueID) (*store.QueueEntry, error)
	// QueueEntryForMessage retrieves the queue entry for a message.
	QueueEntryForMessage(ctx context.Context, n ident.MessageNumber) (*store.QueueEntry, error)
	// QueuedEntries lists entries currently waiting to be sent.
	QueuedEntries(ctx context.Context) ([]store.QueueEntry, error)
	// MarkFailed moves a QUEUED entry to FAILED.
	MarkFailed(ctx context.Context, id store.QueueID) error
	// Requeue deletes a message's queue entry and creates a fresh QUEUED
	// one, returning the new queue id.
	Requeue(ctx context.Context, n ident.MessageNumber) (store.QueueID, error)
	// QueueErrors lists recorded queue error audit rows.
	QueueErrors(ctx context.Context) ([]store.QueueError, error)
	// ClearQueueErrors deletes all recorded queue errors.
	ClearQueueErrors(ctx context.Context) error
}

// Service manages the transmission record system (server-side).
// It handles connections to storage and creates per-account clients.
type Service interface {
	ServiceHealth
	RecordReader
	Dispatcher
	QueueAdmin

	// Connect establishes connections to storage backends.
	Connect(ctx context.Context) error
	// Close closes all connections, waiting for in-flight dispatches.
	Close(ctx context.Context) error
	// Account returns a client scoped to the given account.
	// The returned client shares the service's connections.
	Account(id ident.AccountID) Account
	// Events returns per-service event instances for subscribing and
	// publishing. Each service has its own events bound to its own event
	// bus, enabling independent event routing and parallel testing.
	Events() *ServiceEvents

	// Receive records an inbound document transmission.
	Receive(ctx context.Context, req ReceiveRequest) (*store.TransmissionRecord, error)
	// Submit records an outbound document transmission and queues it for
	// delivery.
	Submit(ctx context.Context, req SubmitRequest) (*Submission, error)

	// ReconcileSelfSend clones an outbound record addressed to a locally
	// registered receiver back into the inbound flow. Returns the new
	// inbound message number, or zero when the receiver is not local.
	ReconcileSelfSend(ctx context.Context, n ident.MessageNumber) (ident.MessageNumber, error)

	// Statistics returns per-account traffic statistics for all accounts.
	Statistics(ctx context.Context) ([]store.AccountStatistics, error)
}

// Connection states for the service.
const (
	stateDisconnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
)

// service is the default implementation of Service.
type service struct {
	store         store.Store
	transport     Transport
	registry      store.ReceiverRegistry
	payloadStore  blob.Store
	evidenceStore blob.Store
	logger        *slog.Logger
	opts          *options
	state         int32 // stateDisconnected, stateConnecting, or stateConnected
	otel          *otelInstrumentation
	dispatchSem   *semaphore.Weighted // Limits concurrent transport sends
	eventBus      *event.Bus          // Event bus for publishing events
	events        *ServiceEvents      // Per-service event instances
}

// NewService creates a new transit service.
// Call Connect() to establish connections to backends.
func NewService(opts ...Option) (Service, error) {
	o := newOptions(opts...)

	if o.store == nil {
		return nil, ErrStoreRequired
	}

	// Initialize OTel instrumentation
	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	return &service{
		store:         o.store,
		transport:     o.transport,
		registry:      o.registry,
		payloadStore:  o.payloadStore,
		evidenceStore: o.evidenceStore,
		logger:        o.logger,
		opts:          o,
		otel:          otelInstr,
		dispatchSem:   semaphore.NewWeighted(o.maxDispatches),
	}, nil
}

// Events returns per-service event instances for subscribing and publishing.
func (s *service) Events() *ServiceEvents {
	return s.events
}

// IsConnected returns true if the service is connected and ready.
func (s *service) IsConnected() bool {
	return atomic.LoadInt32(&s.state) == stateConnected
}

// checkConnected gates every operation on the connection state.
func (s *service) checkConnected() error {
	if atomic.LoadInt32(&s.state) != stateConnected {
		return ErrNotConnected
	}
	return nil
}

// Connect establishes connections to storage backends.
func (s *service) Connect(ctx context.Context) error {
	// Use three-state to prevent operations from seeing partial initialization
	// stateDisconnected -> stateConnecting -> stateConnected
	if !atomic.CompareAndSwapInt32(&s.state, stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}

	// Reset to disconnected on failure, set to connected on success
	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&s.state, stateConnected)
		} else {
			atomic.StoreInt32(&s.state, stateDisconnected)
		}
	}()

	if err := s.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	// Initialize event bus with appropriate transport
	if err := s.initEventBus(ctx); err != nil {
		s.store.Close(ctx)
		return fmt.Errorf("init event bus: %w", err)
	}

	success = true
	s.logger.Info("transit service connected")
	return nil
}

// busCounter generates unique suffixes for event bus names.
var busCounter int64

// initEventBus initializes the event bus for this service.
// Each service creates its own bus with its own event instances.
func (s *service) initEventBus(ctx context.Context) error {
	// Each bus needs a unique name, so append a counter suffix
	busName := fmt.Sprintf("%s-%d", s.opts.serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error

	switch {
	case s.opts.eventTransport != nil:
		s.logger.Info("initializing event bus with custom transport")
		bus, err = event.NewBus(busName, event.WithTransport(s.opts.eventTransport))
	case s.opts.redisClient != nil:
		s.logger.Info("initializing event bus with Redis transport")
		t, transportErr := eventredis.New(s.opts.redisClient)
		if transportErr != nil {
			return fmt.Errorf("create redis transport: %w", transportErr)
		}
		bus, err = event.NewBus(busName, event.WithTransport(t))
	default:
		s.logger.Debug("initializing event bus with noop transport")
		bus, err = event.NewBus(busName, event.WithTransport(noop.New()))
	}

	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	s.eventBus = bus

	// Create and register per-service events (unique per service instance).
	s.events = newServiceEvents(busName)
	if err := registerServiceEvents(ctx, bus, s.events); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register service events: %w", err)
	}

	return nil
}

// Close closes connections to storage backends.
func (s *service) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error

	// Wait for in-flight dispatches to complete (graceful shutdown).
	// After setting state to disconnected, no new dispatches can start
	// because checkConnected fails. We acquire all semaphore slots to wait
	// for existing operations to finish.
	s.logger.Info("waiting for in-flight dispatches to complete...", "timeout", s.opts.shutdownTimeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer shutdownCancel()
	if err := s.dispatchSem.Acquire(shutdownCtx, s.opts.maxDispatches); err != nil {
		// Context cancelled or deadline exceeded - log but continue shutdown
		s.logger.Warn("timeout waiting for in-flight dispatches, proceeding with shutdown",
			"error", err)
		errs = append(errs, fmt.Errorf("graceful shutdown timeout: %w", err))
	} else {
		s.dispatchSem.Release(s.opts.maxDispatches)
		s.logger.Info("all in-flight dispatches completed")
	}

	// Close event bus only if using a real transport.
	// For noop transport, the bus doesn't hold resources.
	if s.eventBus != nil && (s.opts.eventTransport != nil || s.opts.redisClient != nil) {
		if err := s.eventBus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}

	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}

// Account returns a client scoped to the given account.
func (s *service) Account(id ident.AccountID) Account {
	return &accountClient{
		id:      id,
		service: s,
	}
}
