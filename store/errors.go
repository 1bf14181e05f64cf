package store

import "errors"

// Sentinel errors for the store package.
var (
	// ErrNotFound is returned when a record cannot be found, or when it
	// exists but belongs to a different account. The two cases are never
	// distinguished so existence does not leak across accounts.
	ErrNotFound = errors.New("store: not found")

	// ErrValidation is returned when a record is missing required fields.
	ErrValidation = errors.New("store: validation failed")

	// ErrInvalidID is returned when an invalid identifier is provided.
	ErrInvalidID = errors.New("store: invalid id")

	// ErrDuplicateEntry is returned when a uniqueness constraint is
	// violated, e.g. a duplicate reception id or a second queue entry for
	// the same message.
	ErrDuplicateEntry = errors.New("store: duplicate entry")

	// ErrInvalidStateTransition is returned when a queue entry is not in a
	// state that permits the requested transition.
	ErrInvalidStateTransition = errors.New("store: invalid state transition")

	// ErrInvalidSearch is returned when search parameters are malformed.
	ErrInvalidSearch = errors.New("store: invalid search parameters")

	// ErrNotConnected is returned when operations are attempted before Connect().
	ErrNotConnected = errors.New("store: not connected")

	// ErrAlreadyConnected is returned when Connect() is called twice.
	ErrAlreadyConnected = errors.New("store: already connected")

	// ErrPersistence is returned when the underlying store fails. The
	// low-level cause is wrapped and can be inspected with errors.Unwrap.
	ErrPersistence = errors.New("store: persistence failure")
)

// Error checking helpers.

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsDuplicateEntry(err error) bool {
	return errors.Is(err, ErrDuplicateEntry)
}

func IsInvalidStateTransition(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition)
}
