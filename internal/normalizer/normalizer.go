// Package normalizer converts decoded entries into canonical transactions.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"tuleva/camt-reconciler/internal/currencyutils"
	"tuleva/camt-reconciler/internal/dateutils"
	"tuleva/camt-reconciler/internal/models"
	"tuleva/camt-reconciler/internal/textutils"
)

// dedupKeyLength is the number of hex characters kept from the digest
const dedupKeyLength = 32

// Normalizer canonicalizes RawEntry values. It is safe for concurrent use.
type Normalizer struct {
	extractor *textutils.Extractor
}

// New creates a normalizer that scans unstructured remittance text with the
// given extractor.
func New(extractor *textutils.Extractor) *Normalizer {
	return &Normalizer{extractor: extractor}
}

// NewWithPatterns compiles the reference patterns and creates a normalizer.
// An empty list selects textutils.DefaultReferencePatterns.
func NewWithPatterns(patterns []string) (*Normalizer, error) {
	extractor, err := textutils.NewExtractor(patterns)
	if err != nil {
		return nil, err
	}
	return New(extractor), nil
}

// Normalize converts one entry. It never fails: anything that cannot be
// extracted reliably is reported through LowConfidence.
func (n *Normalizer) Normalize(raw models.RawEntry, parentMessageID string) models.NormalizedTransaction {
	currency := currencyutils.NormalizeCode(raw.Currency)

	amount := raw.Amount.Abs()
	if raw.CreditDebit == models.TransactionTypeDebit {
		amount = amount.Neg()
	}
	minor, exact := currencyutils.ToMinorUnits(amount, currency)

	ref, source, lowConfidence := n.extractReference(raw)

	return models.NormalizedTransaction{
		DedupKey:        DedupKey(parentMessageID, raw.Index, minor, raw.ValueDate),
		MessageID:       parentMessageID,
		EntryIndex:      raw.Index,
		AmountMinor:     minor,
		Amount:          currencyutils.FromMinorUnits(minor, currency),
		Currency:        currency,
		ValueDate:       raw.ValueDate,
		BookingDate:     raw.BookingDate,
		Reference:       ref,
		ReferenceSource: source,
		LowConfidence:   lowConfidence || !exact,
		Reversal:        raw.Reversal,
		ExternalID:      raw.ExternalID,
		EndToEndID:      raw.EndToEndID,
		Counterparty:    raw.Counterparty,
	}
}

// extractReference prefers a well-formed structured reference, then the
// unstructured text. A malformed structured reference is used only when the
// text yields nothing, and then with low confidence.
func (n *Normalizer) extractReference(raw models.RawEntry) (string, models.ReferenceSource, bool) {
	structured := textutils.NormalizeReference(raw.StructuredReference)
	if structured != "" && textutils.IsValidStructuredReference(structured) {
		return structured, models.ReferenceStructured, false
	}

	tokens := n.extractor.Extract(textutils.JoinRemittance(raw.Unstructured))
	switch {
	case len(tokens) == 1:
		return tokens[0].Value, models.ReferenceUnstructured, !tokens[0].Valid
	case len(tokens) > 1:
		return tokens[0].Value, models.ReferenceUnstructured, true
	case structured != "":
		return structured, models.ReferenceStructured, true
	}

	return "", models.ReferenceNone, true
}

// DedupKey derives the stable identity of a transaction from its message id,
// entry position, amount and value date.
func DedupKey(messageID string, entryIndex int, amountMinor int64, valueDate time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%s",
		messageID, entryIndex, amountMinor, dateutils.ToISODate(valueDate))))
	return hex.EncodeToString(sum[:])[:dedupKeyLength]
}
