package models

import "time"

// ProcessingStatus is the state of an idempotency ledger entry
type ProcessingStatus string

const (
	ProcessingIncomplete ProcessingStatus = "INCOMPLETE"
	ProcessingComplete   ProcessingStatus = "COMPLETE"
)

// ProcessingRecord is the idempotency ledger entry for one (message id,
// content hash). It moves INCOMPLETE -> COMPLETE once and never back.
type ProcessingRecord struct {
	MessageID   string           `json:"message_id"`
	ContentHash string           `json:"content_hash"`
	Status      ProcessingStatus `json:"status"`
	Version     int64            `json:"version"`
	Attempts    int              `json:"attempts"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}
