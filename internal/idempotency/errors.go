package idempotency

import (
	"fmt"
	"time"
)

// AlreadyProcessedError is returned by Begin when the message and content hash
// were completed before. Callers treat it as success.
type AlreadyProcessedError struct {
	MessageID   string
	ContentHash string
	CompletedAt time.Time
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("message '%s' (hash %s) already processed at %s",
		e.MessageID, shortHash(e.ContentHash), e.CompletedAt.Format(time.RFC3339))
}

// StaleTokenError is returned by Complete when another run completed the
// record, or matched one of its contributions, first. Nothing was written.
type StaleTokenError struct {
	MessageID   string
	ContentHash string
	Version     int64
}

func (e *StaleTokenError) Error() string {
	return fmt.Sprintf("processing token for message '%s' (hash %s, version %d) is stale",
		e.MessageID, shortHash(e.ContentHash), e.Version)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
