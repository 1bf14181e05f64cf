package transit

import (
	"errors"
	"fmt"

	"github.com/docport/transit/store"
)

// Sentinel errors for the transit package.
// Use errors.Is() to check for these errors.
//
// These errors wrap corresponding store-level errors where applicable, so
// errors.Is(err, transit.ErrNotFound) matches both transit-level and
// store-level "not found" errors.
var (
	// ErrNotFound is returned when a record or queue entry cannot be found.
	// Wraps store.ErrNotFound for consistent error checking.
	ErrNotFound = fmt.Errorf("transit: %w", store.ErrNotFound)

	// ErrValidation is returned for record validation failures.
	// Wraps store.ErrValidation for consistent error checking.
	ErrValidation = fmt.Errorf("transit: %w", store.ErrValidation)

	// ErrDuplicateEntry is returned when a duplicate reception id or queue
	// entry is detected. Wraps store.ErrDuplicateEntry.
	ErrDuplicateEntry = fmt.Errorf("transit: %w", store.ErrDuplicateEntry)

	// ErrInvalidStateTransition is returned when a queue entry is not in a
	// state that permits the requested transition.
	// Wraps store.ErrInvalidStateTransition.
	ErrInvalidStateTransition = fmt.Errorf("transit: %w", store.ErrInvalidStateTransition)

	// ErrInvalidID is returned when an invalid identifier is provided.
	// Wraps store.ErrInvalidID for consistent error checking.
	ErrInvalidID = fmt.Errorf("transit: %w", store.ErrInvalidID)

	// ErrNotConnected is returned when operations are attempted before Connect().
	// Wraps store.ErrNotConnected for consistent error checking.
	ErrNotConnected = fmt.Errorf("transit: %w", store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps store.ErrAlreadyConnected for consistent error checking.
	ErrAlreadyConnected = fmt.Errorf("transit: %w", store.ErrAlreadyConnected)

	// ErrStoreRequired is returned when no store is configured.
	ErrStoreRequired = errors.New("transit: store is required")

	// ErrTransportRequired is returned when dispatch is attempted without a
	// configured transport.
	ErrTransportRequired = errors.New("transit: transport is required")

	// ErrRegistryNotConfigured is returned when self-send reconciliation is
	// attempted without a receiver registry.
	ErrRegistryNotConfigured = errors.New("transit: receiver registry not configured")

	// ErrPayloadStoreNotConfigured is returned when payload access is
	// attempted without a configured payload blob store.
	ErrPayloadStoreNotConfigured = errors.New("transit: payload store not configured")

	// ErrEvidenceStoreNotConfigured is returned when evidence access is
	// attempted without a configured evidence blob store.
	ErrEvidenceStoreNotConfigured = errors.New("transit: evidence store not configured")
)

// TransportError wraps a failure of the physical transmission. The queue
// entry stays QUEUED when a dispatch fails with a TransportError; the
// failure itself is recorded as a queue error audit row.
type TransportError struct {
	// RemoteHost is the remote endpoint, when known.
	RemoteHost string
	// Err is the underlying transport failure.
	Err error
}

func (e *TransportError) Error() string {
	if e.RemoteHost != "" {
		return fmt.Sprintf("transit: transport to %s: %v", e.RemoteHost, e.Err)
	}
	return fmt.Sprintf("transit: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// EventPublishError is returned when event publishing fails but the
// operation itself succeeded. Only returned when WithEventErrorsFatal is
// configured; otherwise publish failures are reported through the failure
// handler.
type EventPublishError struct {
	// EventName is the name of the event that failed to publish.
	EventName string
	// Err is the underlying publish failure.
	Err error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("transit: publish %s event: %v", e.EventName, e.Err)
}

func (e *EventPublishError) Unwrap() error {
	return e.Err
}

// IsEventPublishError checks if the error is an event publish error and
// returns details.
func IsEventPublishError(err error) (*EventPublishError, bool) {
	var epe *EventPublishError
	if errors.As(err, &epe) {
		return epe, true
	}
	return nil, false
}
