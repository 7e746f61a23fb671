package coordinator

import (
	"time"

	"tuleva/camt-reconciler/internal/models"
)

// RunStatus is the overall result of a run
type RunStatus string

const (
	RunCompleted RunStatus = "COMPLETED"
	// RunPartial means at least one statement failed or was left for the next run
	RunPartial   RunStatus = "PARTIAL"
	// RunSkipped means another instance holds the lock
	RunSkipped   RunStatus = "SKIPPED"
	RunFailed    RunStatus = "FAILED"
)

// StatementStatus is the result of handling one fetched message
type StatementStatus string

const (
	StatementProcessed        StatementStatus = "PROCESSED"
	StatementAlreadyProcessed StatementStatus = "ALREADY_PROCESSED"
	StatementMalformed        StatementStatus = "MALFORMED"
	StatementUnsupported      StatementStatus = "UNSUPPORTED_VERSION"
	StatementStale            StatementStatus = "STALE"
	StatementFailed           StatementStatus = "FAILED"
	// StatementDeferred was fetched but not started before the run stopped dequeuing
	StatementDeferred         StatementStatus = "DEFERRED"
)

// IsSuccess reports whether the statement needs no further attention
func (s StatementStatus) IsSuccess() bool {
	return s == StatementProcessed || s == StatementAlreadyProcessed || s == StatementStale
}

// StatementResult is one row of the run summary
type StatementResult struct {
	EnvelopeID  string          `csv:"envelope_id" json:"envelope_id"`
	MessageID   string          `csv:"message_id" json:"message_id"`
	ContentHash string          `csv:"content_hash" json:"content_hash"`
	Status      StatementStatus `csv:"status" json:"status"`
	Matched     int             `csv:"matched" json:"matched"`
	Ambiguous   int             `csv:"ambiguous" json:"ambiguous"`
	Unmatched   int             `csv:"unmatched" json:"unmatched"`
	Duplicate   int             `csv:"duplicate" json:"duplicate"`
	Errored     int             `csv:"errored" json:"errored"`
	Error       string          `csv:"error" json:"error"`
}

func (r *StatementResult) count(status models.MatchStatus) {
	switch status {
	case models.MatchStatusMatched:
		r.Matched++
	case models.MatchStatusAmbiguous:
		r.Ambiguous++
	case models.MatchStatusUnmatched:
		r.Unmatched++
	case models.MatchStatusDuplicate:
		r.Duplicate++
	}
}

// clearCounts forgets match counts of outcomes that were not persisted
func (r *StatementResult) clearCounts() {
	r.Matched, r.Ambiguous, r.Unmatched, r.Duplicate = 0, 0, 0, 0
}

// RunSummary reports what one run did
type RunSummary struct {
	RunID      string            `json:"run_id"`
	Status     RunStatus         `json:"status"`
	State      State             `json:"state"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Fetched    int               `json:"fetched"`
	Statements []StatementResult `json:"statements"`
	Error      string            `json:"error,omitempty"`
}

// Totals sums the entry counts over all statements
func (s *RunSummary) Totals() StatementResult {
	var total StatementResult
	for _, r := range s.Statements {
		total.Matched += r.Matched
		total.Ambiguous += r.Ambiguous
		total.Unmatched += r.Unmatched
		total.Duplicate += r.Duplicate
		total.Errored += r.Errored
	}
	return total
}

// Duration returns how long the run took
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s *RunSummary) finalStatus() RunStatus {
	for _, r := range s.Statements {
		if !r.Status.IsSuccess() {
			return RunPartial
		}
	}
	return RunCompleted
}
