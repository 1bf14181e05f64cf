package store

import (
	"time"

	"github.com/docport/transit/ident"
)

// InboundStatistics summarizes the inbound side of an account.
type InboundStatistics struct {
	// Total is the number of inbound messages.
	Total int64
	// Undelivered is the number of inbound messages not yet downloaded.
	Undelivered int64
	// LastDownloaded is the delivery timestamp of the most recently
	// downloaded inbound message.
	LastDownloaded *time.Time
	// LastReceived is the reception timestamp of the most recent inbound
	// message.
	LastReceived *time.Time
	// OldestUndelivered is the reception timestamp of the oldest inbound
	// message still awaiting download.
	OldestUndelivered *time.Time
}

// OutboundStatistics summarizes the outbound side of an account.
type OutboundStatistics struct {
	// Total is the number of outbound messages.
	Total int64
	// Undelivered is the number of outbound messages without a delivered
	// timestamp.
	Undelivered int64
	// LastSent is the delivery timestamp of the most recent outbound
	// transmission.
	LastSent *time.Time
	// LastReceived is the timestamp of the most recently accepted
	// outbound message.
	LastReceived *time.Time
}

// AccountStatistics is one derived statistics row per account. It carries
// no state of its own; every field is an aggregation over the account's
// transmission records.
type AccountStatistics struct {
	AccountID    ident.AccountID
	AccountName  string
	ContactEmail string
	// Total is the number of messages regardless of direction.
	Total    int64
	Inbound  InboundStatistics
	Outbound OutboundStatistics
}
