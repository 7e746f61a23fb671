package models

import "time"

// MatchStatus is the result class of matching one transaction
type MatchStatus string

const (
	MatchStatusMatched   MatchStatus = "MATCHED"
	MatchStatusAmbiguous MatchStatus = "AMBIGUOUS"
	MatchStatusUnmatched MatchStatus = "UNMATCHED"
	MatchStatusDuplicate MatchStatus = "DUPLICATE"
)

// Reason codes attached to outcomes
const (
	ReasonExact            = "exact"
	ReasonAmountTolerance  = "amount-tolerance"
	ReasonMultipleExact    = "multiple-candidates"
	ReasonAlreadyProcessed = "already-matched"
	ReasonNoReference      = "no-reference"
	ReasonReversal         = "reversal-entry"
	ReasonDebit            = "debit-entry"
	ReasonLowConfidence    = "low-confidence-reference"
	ReasonAmountMismatch   = "amount-mismatch"
	ReasonReferenceAmbig   = "reference-ambiguous"
	ReasonNoCandidate      = "no-candidate"
)

// Settles reports whether an outcome with this status ends matching for its dedup key
func (s MatchStatus) Settles() bool {
	return s == MatchStatusMatched || s == MatchStatusDuplicate
}

// MatchOutcome is the immutable result of matching one NormalizedTransaction.
// Later runs may append a newer outcome for the same dedup key; history is kept.
type MatchOutcome struct {
	DedupKey       string      `json:"dedup_key"`
	MessageID      string      `json:"message_id"`
	ContentHash    string      `json:"content_hash"`
	EntryIndex     int         `json:"entry_index"`
	Status         MatchStatus `json:"status"`
	ContributionID string      `json:"contribution_id,omitempty"`
	CandidateIDs   []string    `json:"candidate_ids,omitempty"`
	Reason         string      `json:"reason"`
	AmountMinor    int64       `json:"amount_minor"`
	Currency       string      `json:"currency"`
	Reference      string      `json:"reference,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
