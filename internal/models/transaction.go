package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferenceSource records where a transaction's reference token came from
type ReferenceSource string

const (
	ReferenceNone         ReferenceSource = "none"
	ReferenceStructured   ReferenceSource = "structured"
	ReferenceUnstructured ReferenceSource = "unstructured"
)

// NormalizedTransaction is the canonical form of one RawEntry. Amounts are
// signed: credits positive, debits negative.
type NormalizedTransaction struct {
	DedupKey        string          `json:"dedup_key" csv:"dedup_key"`
	MessageID       string          `json:"message_id" csv:"message_id"`
	EntryIndex      int             `json:"entry_index" csv:"entry_index"`
	AmountMinor     int64           `json:"amount_minor" csv:"amount_minor"`
	Amount          decimal.Decimal `json:"amount" csv:"amount"`
	Currency        string          `json:"currency" csv:"currency"`
	ValueDate       time.Time       `json:"value_date" csv:"-"`
	BookingDate     time.Time       `json:"booking_date" csv:"-"`
	Reference       string          `json:"reference" csv:"reference"`
	ReferenceSource ReferenceSource `json:"reference_source" csv:"reference_source"`
	LowConfidence   bool            `json:"low_confidence" csv:"low_confidence"`
	Reversal        bool            `json:"reversal" csv:"reversal"`
	ExternalID      string          `json:"external_id" csv:"external_id"`
	EndToEndID      string          `json:"end_to_end_id" csv:"end_to_end_id"`
	Counterparty    Counterparty    `json:"counterparty" csv:"-"`
}

// IsCredit reports whether money came in
func (t NormalizedTransaction) IsCredit() bool {
	return t.Amount.IsPositive()
}

// TransactionRef is the reference handed to the contribution store on a match
func (t NormalizedTransaction) TransactionRef() string {
	return t.DedupKey
}
