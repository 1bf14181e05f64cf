package store

import (
	"fmt"
	"time"

	"github.com/docport/transit/ident"
)

// PageSize is the fixed page size shared by search and undelivered listings.
const PageSize = 25

// DateCondition compares the day-truncated received timestamp of a record
// against a caller-supplied date.
type DateCondition string

// Supported date conditions.
const (
	DateEqual        DateCondition = "="
	DateLessEqual    DateCondition = "<="
	DateGreaterEqual DateCondition = ">="
)

// Valid reports whether the condition is one of the supported comparisons.
func (c DateCondition) Valid() bool {
	switch c {
	case DateEqual, DateLessEqual, DateGreaterEqual:
		return true
	}
	return false
}

// SearchParams is an optional filter tuple for message searches. All set
// filters are ANDed. The zero value matches every record of the account,
// first page.
type SearchParams struct {
	// Direction restricts to one transfer direction. Empty matches both.
	Direction Direction
	// Sender matches the canonical string form of the sender exactly.
	Sender ident.ParticipantID
	// Receiver matches the canonical string form of the receiver exactly.
	Receiver ident.ParticipantID
	// DateCondition and Date filter on the day-truncated received
	// timestamp. Both must be set together.
	DateCondition DateCondition
	Date          time.Time
	// PageIndex is 1-based. Zero selects the first page.
	PageIndex int
}

// Validate checks the consistency of the parameters.
func (p SearchParams) Validate() error {
	if p.Direction != "" && !p.Direction.Valid() {
		return fmt.Errorf("%w: direction %q", ErrInvalidSearch, p.Direction)
	}
	if p.DateCondition != "" && !p.DateCondition.Valid() {
		return fmt.Errorf("%w: date condition %q", ErrInvalidSearch, p.DateCondition)
	}
	if p.DateCondition != "" && p.Date.IsZero() {
		return fmt.Errorf("%w: date condition without date", ErrInvalidSearch)
	}
	if p.DateCondition == "" && !p.Date.IsZero() {
		return fmt.Errorf("%w: date without date condition", ErrInvalidSearch)
	}
	if p.PageIndex < 0 {
		return fmt.Errorf("%w: page index %d", ErrInvalidSearch, p.PageIndex)
	}
	return nil
}

// HasDateFilter reports whether a date filter is set.
func (p SearchParams) HasDateFilter() bool {
	return p.DateCondition != "" && !p.Date.IsZero()
}

// Offset returns the row offset for the selected page.
// The first page has offset 0, the second PageSize, and so on.
func (p SearchParams) Offset() int {
	if p.PageIndex <= 1 {
		return 0
	}
	return (p.PageIndex - 1) * PageSize
}

// MatchesDate reports whether the day-truncated received timestamp
// satisfies the date filter. Used by backends without SQL date truncation.
func (p SearchParams) MatchesDate(received time.Time) bool {
	if !p.HasDateFilter() {
		return true
	}
	day := func(t time.Time) time.Time {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	got, want := day(received), day(p.Date)
	switch p.DateCondition {
	case DateEqual:
		return got.Equal(want)
	case DateLessEqual:
		return !got.After(want)
	case DateGreaterEqual:
		return !got.Before(want)
	}
	return false
}
