package transit

import (
	"context"
	"io"
	"time"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// Transport performs the physical transmission of an outbound document to
// the receiver's access point. Implementations are protocol-specific and
// live outside this module.
type Transport interface {
	// Send transmits the payload described by the record and returns the
	// delivery receipt. payload may be nil when the record carries no
	// stored payload.
	Send(ctx context.Context, record *store.TransmissionRecord, payload io.Reader) (*DeliveryReceipt, error)
}

// DeliveryReceipt is the transport-level proof of a completed transmission.
type DeliveryReceipt struct {
	// TransmissionID is the transport-assigned identifier of the physical
	// transmission.
	TransmissionID ident.TransmissionID
	// RemoteHost names the remote access point that accepted the document.
	RemoteHost string
	// Evidence is the raw transport receipt. Persisted to the evidence
	// blob store before any record metadata is updated.
	Evidence []byte
	// EvidenceContentType describes Evidence, e.g. "application/xml".
	EvidenceContentType string
	// DeliveredAt is when the remote end accepted the transmission.
	// Zero means now.
	DeliveredAt time.Time
}
