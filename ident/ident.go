// Package ident provides the identifier value types used throughout the
// transit module: participants, accounts, channels, document classifiers,
// message numbers and reception ids.
//
// All types are comparable value types. The zero value means "absent" for
// identifiers that are optional on a transmission record; use IsZero to
// check for absence instead of comparing against magic values.
package ident

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ParticipantID identifies a network participant in canonical,
// scheme-prefixed form, e.g. "9908:974760673".
type ParticipantID string

// ParseParticipantID validates and returns a ParticipantID.
// The identifier must be non-empty and of the form "scheme:value" with a
// non-empty scheme and value.
func ParseParticipantID(s string) (ParticipantID, error) {
	scheme, value, ok := strings.Cut(s, ":")
	if !ok || scheme == "" || value == "" {
		return "", fmt.Errorf("ident: invalid participant id %q", s)
	}
	return ParticipantID(s), nil
}

// String returns the canonical string form.
func (p ParticipantID) String() string { return string(p) }

// IsZero reports whether the participant id is absent.
func (p ParticipantID) IsZero() bool { return p == "" }

// Scheme returns the scheme prefix, or "" if the id is malformed.
func (p ParticipantID) Scheme() string {
	scheme, _, ok := strings.Cut(string(p), ":")
	if !ok {
		return ""
	}
	return scheme
}

// AccountID identifies the account that owns a transmission record.
// A record may transiently carry a zero AccountID before it is attributed.
type AccountID int

// String returns the decimal form.
func (a AccountID) String() string { return fmt.Sprintf("%d", int(a)) }

// IsZero reports whether the account id is absent.
func (a AccountID) IsZero() bool { return a == 0 }

// Int returns the numeric value.
func (a AccountID) Int() int { return int(a) }

// MessageNumber is the store-assigned monotonic surrogate key of a
// transmission record. It is never reused.
type MessageNumber int64

// String returns the decimal form.
func (n MessageNumber) String() string { return fmt.Sprintf("%d", int64(n)) }

// IsZero reports whether the message number has not been assigned yet.
func (n MessageNumber) IsZero() bool { return n == 0 }

// Int64 returns the numeric value.
func (n MessageNumber) Int64() int64 { return int64(n) }

// ReceptionID is the globally unique id assigned to a message at the point
// of reception or send. It correlates duplicates and reconciles self-sends.
type ReceptionID string

// NewReceptionID mints a fresh reception id.
func NewReceptionID() ReceptionID {
	return ReceptionID(uuid.New().String())
}

// ParseReceptionID validates and returns a ReceptionID.
func ParseReceptionID(s string) (ReceptionID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("ident: invalid reception id %q: %w", s, err)
	}
	return ReceptionID(s), nil
}

// String returns the canonical string form.
func (r ReceptionID) String() string { return string(r) }

// IsZero reports whether the reception id is absent.
func (r ReceptionID) IsZero() bool { return r == "" }

// TransmissionID is the transport-layer identifier of a physical
// transmission. It is assigned by the transport after a successful send.
type TransmissionID string

// String returns the canonical string form.
func (t TransmissionID) String() string { return string(t) }

// IsZero reports whether the transmission id is absent.
func (t TransmissionID) IsZero() bool { return t == "" }

// ChannelID names the logical transport channel a message travelled on.
type ChannelID string

// String returns the canonical string form.
func (c ChannelID) String() string { return string(c) }

// IsZero reports whether the channel id is absent.
func (c ChannelID) IsZero() bool { return c == "" }

// DocumentTypeID classifies the business document carried by a message.
type DocumentTypeID string

// String returns the canonical string form.
func (d DocumentTypeID) String() string { return string(d) }

// IsZero reports whether the document type id is absent.
func (d DocumentTypeID) IsZero() bool { return d == "" }

// ProcessID identifies the business process a document belongs to.
// Optional on a transmission record.
type ProcessID string

// String returns the canonical string form.
func (p ProcessID) String() string { return string(p) }

// IsZero reports whether the process id is absent.
func (p ProcessID) IsZero() bool { return p == "" }

// InstanceID is the envelope instance identifier carried from the document
// envelope. Optional.
type InstanceID string

// String returns the canonical string form.
func (i InstanceID) String() string { return string(i) }

// IsZero reports whether the instance id is absent.
func (i InstanceID) IsZero() bool { return i == "" }
