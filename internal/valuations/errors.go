package valuations

import "errors"

var (
	// ErrNotFound is returned when a valuation does not exist.
	ErrNotFound = errors.New("valuation not found")

	// ErrStaleTransition is returned when a guarded status update matched no
	// row, meaning another writer already moved the record on.
	ErrStaleTransition = errors.New("stale status transition")
)
