package app

import "errors"

// ErrNotFound and related errors describe lookup and storage failures
// surfaced by the application service.
var (
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a lost optimistic-concurrency race at the storage
	// boundary. It is the only error callers are expected to retry.
	ErrConflict = errors.New("concurrent update conflict")
)
