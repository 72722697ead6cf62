package state

import "errors"

var (
	// ErrClosed is returned by all operations after Destroy.
	ErrClosed = errors.New("state: store is destroyed")

	// ErrInvalidKey is returned for writes with an empty key.
	ErrInvalidKey = errors.New("state: key must not be empty")

	// ErrUnknownMergeStrategy is returned by Merge for a strategy name that
	// is none of last-write-wins, server-wins or field-merge.
	ErrUnknownMergeStrategy = errors.New("state: unknown merge strategy")
)
