// Package idempotency keeps the processing ledger that makes statement
// handling safe to repeat.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/models"
)

// Repository stores processing records and outcomes
type Repository interface {
	// GetProcessingRecord returns nil, nil when no record exists.
	GetProcessingRecord(ctx context.Context, messageID, contentHash string) (*models.ProcessingRecord, error)
	// CreateProcessingRecord returns false when a record with the same key already exists.
	CreateProcessingRecord(ctx context.Context, rec *models.ProcessingRecord) (bool, error)
	IncrementAttempts(ctx context.Context, messageID, contentHash string) error
	// CompleteProcessing appends the outcomes and moves the record at version to
	// COMPLETE in one transaction. It returns false, and writes nothing, when the
	// record is no longer INCOMPLETE at that version or when a MATCHED outcome
	// names a contribution that another outcome already matched.
	CompleteProcessing(ctx context.Context, messageID, contentHash string, version int64, completedAt time.Time, outcomes []models.MatchOutcome) (bool, error)
}

// Token is the right to complete one processing record
type Token struct {
	MessageID   string
	ContentHash string
	Version     int64
	Attempts    int
	Resumed     bool
	StartedAt   time.Time
}

// Guard enforces at-most-once completion per (message id, content hash)
type Guard struct {
	repo   Repository
	logger logging.Logger
	now    func() time.Time
}

// NewGuard creates a guard over the repository
func NewGuard(repo Repository, logger logging.Logger) *Guard {
	return &Guard{repo: repo, logger: logger, now: time.Now}
}

// Begin starts or resumes processing. A COMPLETE record yields
// *AlreadyProcessedError; an INCOMPLETE one is resumed with its version.
func (g *Guard) Begin(ctx context.Context, messageID, contentHash string) (*Token, error) {
	// a lost insert race is resolved by reading the winner's record
	for attempt := 0; attempt < 2; attempt++ {
		rec, err := g.repo.GetProcessingRecord(ctx, messageID, contentHash)
		if err != nil {
			return nil, fmt.Errorf("failed to read processing record: %w", err)
		}

		if rec != nil {
			return g.resume(ctx, rec)
		}

		rec = &models.ProcessingRecord{
			MessageID:   messageID,
			ContentHash: contentHash,
			Status:      models.ProcessingIncomplete,
			Version:     1,
			Attempts:    1,
			StartedAt:   g.now().UTC(),
		}
		created, err := g.repo.CreateProcessingRecord(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("failed to create processing record: %w", err)
		}
		if created {
			g.logger.Debug("Started processing record",
				logging.F(logging.FieldMessageID, messageID),
				logging.F(logging.FieldContentHash, contentHash))
			return tokenFor(rec, false), nil
		}
	}

	return nil, fmt.Errorf("processing record for message '%s' could not be created or read", messageID)
}

func (g *Guard) resume(ctx context.Context, rec *models.ProcessingRecord) (*Token, error) {
	if rec.Status == models.ProcessingComplete {
		completed := time.Time{}
		if rec.CompletedAt != nil {
			completed = *rec.CompletedAt
		}
		return nil, &AlreadyProcessedError{
			MessageID:   rec.MessageID,
			ContentHash: rec.ContentHash,
			CompletedAt: completed,
		}
	}

	if err := g.repo.IncrementAttempts(ctx, rec.MessageID, rec.ContentHash); err != nil {
		return nil, fmt.Errorf("failed to update processing record: %w", err)
	}
	rec.Attempts++

	g.logger.Info("Resuming incomplete processing record",
		logging.F(logging.FieldMessageID, rec.MessageID),
		logging.F(logging.FieldContentHash, rec.ContentHash),
		logging.F(logging.FieldAttempt, rec.Attempts))

	return tokenFor(rec, true), nil
}

// Complete persists the outcomes and marks the record COMPLETE atomically.
// If another run completed the record or claimed one of its contributions
// first, *StaleTokenError is returned and the outcomes are discarded.
func (g *Guard) Complete(ctx context.Context, token *Token, outcomes ...models.MatchOutcome) error {
	if token == nil {
		return fmt.Errorf("nil processing token")
	}

	stamped := make([]models.MatchOutcome, len(outcomes))
	for i, o := range outcomes {
		o.MessageID = token.MessageID
		o.ContentHash = token.ContentHash
		stamped[i] = o
	}

	ok, err := g.repo.CompleteProcessing(ctx, token.MessageID, token.ContentHash, token.Version, g.now().UTC(), stamped)
	if err != nil {
		return fmt.Errorf("failed to complete processing record: %w", err)
	}
	if !ok {
		return &StaleTokenError{
			MessageID:   token.MessageID,
			ContentHash: token.ContentHash,
			Version:     token.Version,
		}
	}
	return nil
}

func tokenFor(rec *models.ProcessingRecord, resumed bool) *Token {
	return &Token{
		MessageID:   rec.MessageID,
		ContentHash: rec.ContentHash,
		Version:     rec.Version,
		Attempts:    rec.Attempts,
		Resumed:     resumed,
		StartedAt:   rec.StartedAt,
	}
}
