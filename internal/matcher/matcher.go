// Package matcher pairs normalized bank transactions with expected contributions.
package matcher

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tuleva/camt-reconciler/internal/currencyutils"
	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/models"
	"tuleva/camt-reconciler/internal/textutils"
)

// DefaultAmountTolerance is the largest amount difference accepted for a
// reference-only match
var DefaultAmountTolerance = decimal.RequireFromString("0.05")

// History looks up outcomes persisted by earlier runs
type History interface {
	// LatestSettled returns the most recent MATCHED or DUPLICATE outcome for the
	// dedup key, or nil if there is none.
	LatestSettled(ctx context.Context, dedupKey string) (*models.MatchOutcome, error)
}

// Config holds the matching policy
type Config struct {
	AmountTolerance decimal.Decimal
}

// Matcher applies the matching algorithm for one run
type Matcher struct {
	history   History
	claims    *ClaimSet
	tolerance decimal.Decimal
	logger    logging.Logger
	now       func() time.Time
}

// New creates a matcher. claims must be shared by every statement of the run.
func New(history History, claims *ClaimSet, cfg Config, logger logging.Logger) *Matcher {
	tolerance := cfg.AmountTolerance
	if tolerance.IsNegative() {
		tolerance = decimal.Zero
	}
	return &Matcher{
		history:   history,
		claims:    claims,
		tolerance: tolerance,
		logger:    logger,
		now:       time.Now,
	}
}

// Match decides the outcome of one transaction against the candidate
// contributions. The error is non-nil only when the outcome history could not
// be read.
func (m *Matcher) Match(ctx context.Context, tx models.NormalizedTransaction, candidates []models.ExpectedContribution) (models.MatchOutcome, error) {
	outcome := models.MatchOutcome{
		DedupKey:    tx.DedupKey,
		MessageID:   tx.MessageID,
		EntryIndex:  tx.EntryIndex,
		AmountMinor: tx.AmountMinor,
		Currency:    tx.Currency,
		Reference:   tx.Reference,
		CreatedAt:   m.now().UTC(),
	}

	prior, err := m.history.LatestSettled(ctx, tx.DedupKey)
	if err != nil {
		return outcome, fmt.Errorf("failed to read outcome history: %w", err)
	}
	if prior != nil {
		return m.finish(duplicate(outcome)), nil
	}

	m.claims.mu.Lock()
	defer m.claims.mu.Unlock()

	if m.claims.settled[tx.DedupKey] {
		return m.finish(duplicate(outcome)), nil
	}

	switch {
	case tx.Reversal:
		return m.finish(unmatched(outcome, models.ReasonReversal)), nil
	case tx.AmountMinor < 0:
		return m.finish(unmatched(outcome, models.ReasonDebit)), nil
	case tx.Reference == "":
		return m.finish(unmatched(outcome, models.ReasonNoReference)), nil
	}

	byReference := m.selectByReference(tx, candidates)

	var exact []models.ExpectedContribution
	for _, c := range byReference {
		if minor, _ := currencyutils.ToMinorUnits(c.Amount, c.Currency); minor == tx.AmountMinor {
			exact = append(exact, c)
		}
	}

	switch len(exact) {
	case 1:
		return m.finish(m.claim(outcome, exact[0], models.ReasonExact)), nil
	case 0:
	default:
		outcome.Status = models.MatchStatusAmbiguous
		outcome.Reason = models.ReasonMultipleExact
		outcome.CandidateIDs = contributionIDs(exact)
		return m.finish(outcome), nil
	}

	switch {
	case len(byReference) == 0:
		return m.finish(unmatched(outcome, models.ReasonNoCandidate)), nil
	case tx.LowConfidence:
		return m.finish(unmatched(outcome, models.ReasonLowConfidence)), nil
	case len(byReference) > 1:
		return m.finish(unmatched(outcome, models.ReasonReferenceAmbig)), nil
	}

	candidate := byReference[0]
	if !currencyutils.WithinTolerance(candidate.Amount, tx.Amount, m.tolerance) {
		return m.finish(unmatched(outcome, models.ReasonAmountMismatch)), nil
	}
	return m.finish(m.claim(outcome, candidate, models.ReasonAmountTolerance)), nil
}

// selectByReference returns pending, unclaimed contributions in the
// transaction's currency carrying its reference. Must be called with the claim
// lock held.
func (m *Matcher) selectByReference(tx models.NormalizedTransaction, candidates []models.ExpectedContribution) []models.ExpectedContribution {
	var selected []models.ExpectedContribution
	for _, c := range candidates {
		if !c.IsPending() || m.claims.isClaimedLocked(c.ID) {
			continue
		}
		if currencyutils.NormalizeCode(c.Currency) != tx.Currency {
			continue
		}
		if textutils.NormalizeReference(c.Reference) != tx.Reference {
			continue
		}
		selected = append(selected, c)
	}
	return selected
}

// must be called with the claim lock held
func (m *Matcher) claim(outcome models.MatchOutcome, c models.ExpectedContribution, reason string) models.MatchOutcome {
	m.claims.claimLocked(c.ID, outcome.DedupKey)
	outcome.Status = models.MatchStatusMatched
	outcome.Reason = reason
	outcome.ContributionID = c.ID
	return outcome
}

func (m *Matcher) finish(outcome models.MatchOutcome) models.MatchOutcome {
	m.logger.Debug("Matched transaction",
		logging.F(logging.FieldMessageID, outcome.MessageID),
		logging.F(logging.FieldEntryIndex, outcome.EntryIndex),
		logging.F(logging.FieldDedupKey, outcome.DedupKey),
		logging.F(logging.FieldStatus, string(outcome.Status)),
		logging.F(logging.FieldReason, outcome.Reason),
		logging.F(logging.FieldContributionID, outcome.ContributionID))
	return outcome
}

func duplicate(outcome models.MatchOutcome) models.MatchOutcome {
	outcome.Status = models.MatchStatusDuplicate
	outcome.Reason = models.ReasonAlreadyProcessed
	return outcome
}

func unmatched(outcome models.MatchOutcome, reason string) models.MatchOutcome {
	outcome.Status = models.MatchStatusUnmatched
	outcome.Reason = reason
	return outcome
}

func contributionIDs(contributions []models.ExpectedContribution) []string {
	ids := make([]string, 0, len(contributions))
	for _, c := range contributions {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}
