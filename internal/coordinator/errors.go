package coordinator

import "errors"

var (
	// ErrLockUnavailable means the lock service could not be reached. A lock
	// held by another instance is not an error.
	ErrLockUnavailable = errors.New("lock service unavailable")
	// ErrPersistence means the outcome store failed; the run is aborted
	ErrPersistence = errors.New("persistence failure")
	// ErrFetch means pending messages could not be fetched from the source
	ErrFetch = errors.New("failed to fetch pending messages")
)
