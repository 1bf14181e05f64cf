package store

import (
	"time"

	"github.com/docport/transit/ident"
)

// QueueID is the surrogate key of an outbound queue entry.
type QueueID int64

// IsZero reports whether the queue id is absent.
func (q QueueID) IsZero() bool { return q == 0 }

// QueueState is the delivery state of an outbound queue entry.
type QueueState string

// Queue states. An entry is created QUEUED and either acknowledged on
// confirmed transport delivery (AOD, terminal success) or moved to FAILED
// by an explicit administrative transition. FAILED is never inferred from
// error count.
const (
	QueueStateQueued       QueueState = "QUEUED"
	QueueStateAcknowledged QueueState = "AOD"
	QueueStateFailed       QueueState = "FAILED"
)

// Valid reports whether the state is a known queue state.
func (s QueueState) Valid() bool {
	switch s {
	case QueueStateQueued, QueueStateAcknowledged, QueueStateFailed:
		return true
	}
	return false
}

// QueueEntry tracks the delivery of one outbound transmission record.
// At most one entry exists per message; re-enqueueing requires deleting the
// prior entry explicitly. The queue, not the metadata row, is authoritative
// for outbound completion pending final accounting: a record whose entry is
// in AOD state is excluded from undelivered-outbound listings even while
// its delivered timestamp is still unset.
type QueueEntry struct {
	QueueID       QueueID
	MessageNumber ident.MessageNumber
	State         QueueState
}

// QueueErrorID is the surrogate key of a queue error row.
type QueueErrorID int64

// QueueError is an append-only audit record of a queue-processing failure.
// Errors are informational; they never change the entry's state.
type QueueError struct {
	ErrorID    QueueErrorID
	QueueID    QueueID
	Message    string
	Details    string
	Stacktrace string
	CreatedAt  time.Time
}
