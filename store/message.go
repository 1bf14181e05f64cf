package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/docport/transit/ident"
)

// Direction indicates whether a message flows into (IN) or out of (OUT) the
// local system relative to the messaging network.
type Direction string

// Transfer directions.
const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// ParseDirection parses a direction case-insensitively.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "IN":
		return DirectionIn, nil
	case "OUT":
		return DirectionOut, nil
	default:
		return "", fmt.Errorf("%w: direction %q", ErrInvalidSearch, s)
	}
}

// Valid reports whether the direction is one of IN or OUT.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// TransmissionRecord is the persisted metadata of one transmitted message,
// in either direction. MessageNumber, Direction and ReceptionID are set at
// creation and never change. Delivered moves from nil to non-nil exactly
// once in spirit; repeated delivery marks overwrite the timestamp
// (last-write-wins) but never reset it to nil.
type TransmissionRecord struct {
	MessageNumber  ident.MessageNumber
	AccountID      ident.AccountID // zero while not yet attributed to an account
	Direction      Direction
	Sender         ident.ParticipantID
	Receiver       ident.ParticipantID
	ChannelID      ident.ChannelID
	DocumentTypeID ident.DocumentTypeID
	ProcessID      ident.ProcessID // optional
	ReceptionID    ident.ReceptionID
	TransmissionID ident.TransmissionID // set only after successful transport
	InstanceID     ident.InstanceID     // optional, carried from the envelope
	Received       time.Time
	Delivered      *time.Time // nil = undelivered
	RemoteHost     string     // remote access point, set with delivery evidence
	PayloadLocation  string   // reference to externally stored payload
	EvidenceLocation string   // reference to externally stored receipt
}

// IsDelivered reports whether the record has been marked consumed.
func (r *TransmissionRecord) IsDelivered() bool {
	return r.Delivered != nil
}

// DeliveryUpdate carries the delivery metadata stamped on an outbound record
// after a successful transmission. The evidence must already be persisted
// when the update is applied; EvidenceLocation references it.
type DeliveryUpdate struct {
	RemoteHost       string
	TransmissionID   ident.TransmissionID
	EvidenceLocation string
	DeliveredAt      time.Time
}

// RecordData contains the data for creating a new transmission record.
// The store assigns the message number.
type RecordData struct {
	AccountID      ident.AccountID
	Direction      Direction
	Sender         ident.ParticipantID
	Receiver       ident.ParticipantID
	ChannelID      ident.ChannelID
	DocumentTypeID ident.DocumentTypeID
	ProcessID      ident.ProcessID
	ReceptionID    ident.ReceptionID
	TransmissionID ident.TransmissionID
	InstanceID     ident.InstanceID
	Received       time.Time
	RemoteHost       string
	PayloadLocation  string
	EvidenceLocation string
}

// Validate checks the required fields of a new record.
// Inbound records must carry a reception id at creation.
func (d RecordData) Validate() error {
	if !d.Direction.Valid() {
		return &FieldError{Field: "direction", Reason: "must be IN or OUT"}
	}
	if d.Received.IsZero() {
		return &FieldError{Field: "received", Reason: "is required"}
	}
	if d.Sender.IsZero() {
		return &FieldError{Field: "sender", Reason: "is required"}
	}
	if d.Receiver.IsZero() {
		return &FieldError{Field: "receiver", Reason: "is required"}
	}
	if d.ChannelID.IsZero() {
		return &FieldError{Field: "channel", Reason: "is required"}
	}
	if d.DocumentTypeID.IsZero() {
		return &FieldError{Field: "document type", Reason: "is required"}
	}
	if d.Direction == DirectionIn && d.ReceptionID.IsZero() {
		return &FieldError{Field: "reception id", Reason: "is required for inbound records"}
	}
	return nil
}

// FieldError reports which field of a record failed validation.
// It unwraps to ErrValidation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("store: %s %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrValidation
}
