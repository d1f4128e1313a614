package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a conversation does not exist or has been deleted.
	ErrNotFound = errors.New("conversation not found")

	// ErrInvalidID is returned when a conversation id is empty.
	ErrInvalidID = errors.New("conversation id is required")
)
