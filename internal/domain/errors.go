package domain

import "errors"

var (
	// ErrInvalidRecord is returned when a payload cannot be decoded into a
	// record or fails validation. It is usually wrapped with the record
	// kind and the underlying cause.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidID is returned for IDs that are neither strings nor numbers.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidTime is returned for timestamps in an unknown layout.
	ErrInvalidTime = errors.New("invalid time")
)
