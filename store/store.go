// Package store provides interfaces and types for transmission record
// storage. Implementations are in the store/sqldb and store/memory
// subpackages.
//
// # Architectural Principle: No Application-Level Locks
//
// All durable state lives in the backing store, and the store is the sole
// serialization point. No component holds long-lived in-process state and
// no operation blocks on another component's in-memory lock. Concurrency
// concerns are handled through:
//
//  1. Atomic key generation: message numbers are assigned by the store
//     (sequence columns, atomic counters), never by the caller.
//
//  2. Uniqueness via constraints: duplicate reception ids and duplicate
//     queue entries are rejected by the store's unique indexes and
//     surfaced as ErrDuplicateEntry, not prevented by pre-checks.
//
//  3. Conditional state transitions: queue state changes use a
//     compare-and-set on the current state (UPDATE ... WHERE state = ...).
//     Two concurrent acknowledgments of the same entry yield exactly one
//     success and one ErrInvalidStateTransition.
//
//  4. Transactional multi-step writes: operations like the clone of an
//     outbound record into the inbound store execute inside one store
//     transaction and roll back entirely on failure.
package store

import (
	"context"
	"time"

	"github.com/docport/transit/ident"
)

// Store is the storage interface for transmission records, the outbound
// delivery queue, and derived account statistics.
//
// All operations must be safe for concurrent use. Implementations must use
// store-level atomicity rather than external locking. See the package
// documentation for details.
type Store interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	MessageStore
	QueueStore
	StatsStore
}

// MessageStore provides operations over transmission metadata records.
// It owns the one-row-per-transmission invariant.
type MessageStore interface {
	// Create persists a new record and assigns its message number.
	// Returns ErrValidation if required fields are missing and
	// ErrDuplicateEntry if the reception id already exists for the
	// account and direction. Records not yet attributed to an account
	// share one dedup scope, as if they belonged to a zero account.
	Create(ctx context.Context, data RecordData) (ident.MessageNumber, error)

	// ByNumber retrieves a record by message number.
	// Returns ErrNotFound if absent.
	ByNumber(ctx context.Context, n ident.MessageNumber) (*TransmissionRecord, error)

	// ByNumberForAccount retrieves a record scoped to an account.
	// Returns ErrNotFound both when the record is absent and when it
	// belongs to a different account.
	ByNumberForAccount(ctx context.Context, account ident.AccountID, n ident.MessageNumber) (*TransmissionRecord, error)

	// ByReceptionID retrieves the record with the given direction and
	// reception id. Returns ErrNotFound if absent.
	ByReceptionID(ctx context.Context, direction Direction, id ident.ReceptionID) (*TransmissionRecord, error)

	// AllByReceptionID retrieves the records carrying the reception id in
	// both directions, for reconciliation and audit.
	AllByReceptionID(ctx context.Context, id ident.ReceptionID) ([]TransmissionRecord, error)

	// Search returns the account's records matching the parameters,
	// ordered by ascending message number, limited to one page.
	Search(ctx context.Context, account ident.AccountID, params SearchParams) ([]TransmissionRecord, error)

	// Count returns the number of records matching the parameters,
	// ignoring pagination.
	Count(ctx context.Context, account ident.AccountID, params SearchParams) (int64, error)

	// Undelivered lists the account's undelivered records for one
	// direction, ordered by ascending message number, capped at PageSize.
	// For IN, undelivered means no delivered timestamp and a non-empty
	// reception id. For OUT it additionally excludes records whose queue
	// entry is in AOD state.
	Undelivered(ctx context.Context, account ident.AccountID, direction Direction) ([]TransmissionRecord, error)

	// UndeliveredInboundCount returns the number of inbound records not
	// yet delivered to the account.
	UndeliveredInboundCount(ctx context.Context, account ident.AccountID) (int64, error)

	// MarkDelivered sets the delivered timestamp. Last write wins:
	// repeated calls overwrite the timestamp with the given time, but a
	// delivered timestamp is never reset to nil.
	MarkDelivered(ctx context.Context, n ident.MessageNumber, at time.Time) error

	// UpdateOutboundDelivery records transport delivery metadata on an
	// outbound record: delivered timestamp, remote host annotation,
	// transmission id and evidence location, in one atomic update.
	UpdateOutboundDelivery(ctx context.Context, n ident.MessageNumber, update DeliveryUpdate) error

	// CloneToInbound copies an outbound record into a new inbound record
	// with a fresh reception id, no delivered timestamp and a new message
	// number. The outbound record is untouched.
	CloneToInbound(ctx context.Context, n ident.MessageNumber, receptionID ident.ReceptionID) (ident.MessageNumber, error)

	// WithoutAccount lists records not yet attributed to any account.
	// Diagnostic.
	WithoutAccount(ctx context.Context) ([]TransmissionRecord, error)
}

// QueueStore provides operations over the outbound delivery queue. It owns
// the queue entry and queue error rows and references transmission records
// only by message number.
type QueueStore interface {
	// Enqueue admits an outbound record for sending. At most one entry
	// may exist per message; returns ErrDuplicateEntry otherwise.
	Enqueue(ctx context.Context, n ident.MessageNumber) (QueueID, error)

	// EntryByQueueID retrieves a queue entry. Returns ErrNotFound if absent.
	EntryByQueueID(ctx context.Context, id QueueID) (*QueueEntry, error)

	// EntryByMessage retrieves the queue entry for a message.
	// Returns ErrNotFound if absent.
	EntryByMessage(ctx context.Context, n ident.MessageNumber) (*QueueEntry, error)

	// QueuedEntries lists entries currently in QUEUED state, ordered by
	// queue id, capped at PageSize. Polled by external dispatchers.
	QueuedEntries(ctx context.Context) ([]QueueEntry, error)

	// MarkAcknowledged transitions QUEUED to AOD. Returns
	// ErrInvalidStateTransition if the entry is not currently QUEUED.
	// The transition is a storage-level compare-and-set.
	MarkAcknowledged(ctx context.Context, id QueueID) error

	// MarkFailed transitions QUEUED to FAILED. Administrative; returns
	// ErrInvalidStateTransition if the entry is not currently QUEUED.
	MarkFailed(ctx context.Context, id QueueID) error

	// DeleteEntry removes a queue entry, permitting an explicit
	// re-enqueue. Returns ErrNotFound if absent.
	DeleteEntry(ctx context.Context, id QueueID) error

	// RecordQueueError appends an error audit row for a queue entry.
	// The entry's state is not changed.
	RecordQueueError(ctx context.Context, id QueueID, message, details, stacktrace string) (QueueErrorID, error)

	// QueueErrors lists all recorded queue errors.
	QueueErrors(ctx context.Context) ([]QueueError, error)

	// ClearQueueErrors deletes all recorded queue errors.
	ClearQueueErrors(ctx context.Context) error
}

// StatsStore provides derived per-account statistics.
type StatsStore interface {
	// AccountStatistics returns one statistics row per account. A zero
	// account id aggregates every known account; a concrete id returns a
	// single row even when the account has no messages.
	AccountStatistics(ctx context.Context, account ident.AccountID) ([]AccountStatistics, error)
}

// ReceiverRegistry is an optional interface for backends that also hold
// account-receiver registrations. It answers whether a participant is
// registered to receive documents on an account, which drives self-send
// reconciliation.
type ReceiverRegistry interface {
	IsRegisteredReceiver(ctx context.Context, account ident.AccountID, participant ident.ParticipantID) (bool, error)
}
