package transit

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/event/v3"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// Event names for transit events.
const (
	EventNameDocumentReceived  = "transit.document.received"
	EventNameDocumentQueued    = "transit.document.queued"
	EventNameDocumentDelivered = "transit.document.delivered"
	EventNameQueueFailed       = "transit.queue.failed"
)

// DocumentReceivedEvent is published when an inbound record is created,
// including records cloned back in by self-send reconciliation.
type DocumentReceivedEvent struct {
	MessageNumber ident.MessageNumber `json:"message_number"`
	AccountID     ident.AccountID     `json:"account_id"`
	Sender        string              `json:"sender"`
	Receiver      string              `json:"receiver"`
	ReceptionID   string              `json:"reception_id"`
	ReceivedAt    time.Time           `json:"received_at"`
}

// DocumentQueuedEvent is published when an outbound record is submitted and
// enters the delivery queue.
type DocumentQueuedEvent struct {
	MessageNumber ident.MessageNumber `json:"message_number"`
	QueueID       store.QueueID       `json:"queue_id"`
	AccountID     ident.AccountID     `json:"account_id"`
	Receiver      string              `json:"receiver"`
	QueuedAt      time.Time           `json:"queued_at"`
}

// DocumentDeliveredEvent is published when a record reaches its receiver:
// an inbound record downloaded by the account, or an outbound record
// acknowledged by the remote access point.
type DocumentDeliveredEvent struct {
	MessageNumber ident.MessageNumber `json:"message_number"`
	AccountID     ident.AccountID     `json:"account_id"`
	Direction     store.Direction     `json:"direction"`
	RemoteHost    string              `json:"remote_host,omitempty"`
	DeliveredAt   time.Time           `json:"delivered_at"`
}

// QueueFailedEvent is published when a queue entry is moved to FAILED by an
// operator.
type QueueFailedEvent struct {
	QueueID       store.QueueID       `json:"queue_id"`
	MessageNumber ident.MessageNumber `json:"message_number"`
	FailedAt      time.Time           `json:"failed_at"`
}

// ServiceEvents provides access to per-service event instances.
// Each service creates its own events bound to its own event bus,
// enabling independent event routing and parallel testing.
//
// Subscribe to events:
//
//	svc.Events().DocumentReceived.Subscribe(ctx, handler)
//	svc.Events().DocumentDelivered.Subscribe(ctx, handler)
type ServiceEvents struct {
	// DocumentReceived is published when an inbound record is created.
	DocumentReceived event.Event[DocumentReceivedEvent]

	// DocumentQueued is published when an outbound record enters the queue.
	DocumentQueued event.Event[DocumentQueuedEvent]

	// DocumentDelivered is published when a record reaches its receiver.
	DocumentDelivered event.Event[DocumentDeliveredEvent]

	// QueueFailed is published when a queue entry is marked FAILED.
	QueueFailed event.Event[QueueFailedEvent]
}

// newServiceEvents creates per-service event instances with a unique name prefix.
func newServiceEvents(namePrefix string) *ServiceEvents {
	return &ServiceEvents{
		DocumentReceived:  event.New[DocumentReceivedEvent](namePrefix + "." + EventNameDocumentReceived),
		DocumentQueued:    event.New[DocumentQueuedEvent](namePrefix + "." + EventNameDocumentQueued),
		DocumentDelivered: event.New[DocumentDeliveredEvent](namePrefix + "." + EventNameDocumentDelivered),
		QueueFailed:       event.New[QueueFailedEvent](namePrefix + "." + EventNameQueueFailed),
	}
}

// registerServiceEvents registers per-service events with the given bus.
func registerServiceEvents(ctx context.Context, bus *event.Bus, events *ServiceEvents) error {
	if err := event.Register(ctx, bus, events.DocumentReceived); err != nil {
		return fmt.Errorf("register DocumentReceived: %w", err)
	}
	if err := event.Register(ctx, bus, events.DocumentQueued); err != nil {
		return fmt.Errorf("register DocumentQueued: %w", err)
	}
	if err := event.Register(ctx, bus, events.DocumentDelivered); err != nil {
		return fmt.Errorf("register DocumentDelivered: %w", err)
	}
	if err := event.Register(ctx, bus, events.QueueFailed); err != nil {
		return fmt.Errorf("register QueueFailed: %w", err)
	}
	return nil
}
