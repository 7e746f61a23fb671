package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tuleva/camt-reconciler/internal/models"
)

var (
	// errVersionMismatch rolls back a completion whose CAS missed
	errVersionMismatch = errors.New("processing record version mismatch")
	// errContributionClaimed rolls back a completion that would match a
	// contribution a second time
	errContributionClaimed = errors.New("contribution already matched")
)

// Repository is the gorm-backed store of processing records and outcomes
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository creates a repository on an open, migrated database
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Ping checks that the database answers
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// GetProcessingRecord returns the record for the key, or nil if there is none
func (r *Repository) GetProcessingRecord(ctx context.Context, messageID, contentHash string) (*models.ProcessingRecord, error) {
	var rows []ProcessingRecordRow
	if err := r.db.WithContext(ctx).
		Where("message_id = ? AND content_hash = ?", messageID, contentHash).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load processing record: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return recordFromRow(rows[0]), nil
}

// CreateProcessingRecord inserts the record unless the key already exists
func (r *Repository) CreateProcessingRecord(ctx context.Context, rec *models.ProcessingRecord) (bool, error) {
	row := ProcessingRecordRow{
		MessageID:   rec.MessageID,
		ContentHash: rec.ContentHash,
		Status:      string(rec.Status),
		Version:     rec.Version,
		Attempts:    rec.Attempts,
		StartedAt:   toMillis(rec.StartedAt),
		UpdateTime:  toMillis(r.now()),
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("failed to save processing record: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// IncrementAttempts counts one more processing attempt without changing the version
func (r *Repository) IncrementAttempts(ctx context.Context, messageID, contentHash string) error {
	res := r.db.WithContext(ctx).Model(&ProcessingRecordRow{}).
		Where("message_id = ? AND content_hash = ?", messageID, contentHash).
		Updates(map[string]interface{}{
			"attempts":    gorm.Expr("attempts + 1"),
			"update_time": toMillis(r.now()),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update processing record: %w", res.Error)
	}
	return nil
}

// CompleteProcessing writes the outcomes and flips the record to COMPLETE in a
// single transaction, guarded by the record version. It returns false and
// writes nothing when the version missed or when a MATCHED outcome names a
// contribution that already has a MATCHED outcome.
func (r *Repository) CompleteProcessing(ctx context.Context, messageID, contentHash string, version int64, completedAt time.Time, outcomes []models.MatchOutcome) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		completed := toMillis(completedAt)
		res := tx.Model(&ProcessingRecordRow{}).
			Where("message_id = ? AND content_hash = ? AND version = ? AND status = ?",
				messageID, contentHash, version, string(models.ProcessingIncomplete)).
			Updates(map[string]interface{}{
				"status":       string(models.ProcessingComplete),
				"version":      gorm.Expr("version + 1"),
				"completed_at": completed,
				"update_time":  completed,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errVersionMismatch
		}

		if len(outcomes) == 0 {
			return nil
		}
		if err := checkUnclaimed(tx, outcomes); err != nil {
			return err
		}
		rows := make([]MatchOutcomeRow, 0, len(outcomes))
		for _, o := range outcomes {
			rows = append(rows, outcomeToRow(o))
		}
		return tx.CreateInBatches(&rows, 100).Error
	})

	switch {
	case errors.Is(err, errVersionMismatch):
		return false, nil
	case errors.Is(err, errContributionClaimed), errors.Is(err, gorm.ErrDuplicatedKey):
		// a concurrent commit won the contribution; the record stays INCOMPLETE
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to complete processing record: %w", err)
	}
	return true, nil
}

// checkUnclaimed fails with errContributionClaimed when a MATCHED outcome
// repeats a contribution within the batch or one already matched in the ledger
func checkUnclaimed(tx *gorm.DB, outcomes []models.MatchOutcome) error {
	seen := make(map[string]bool)
	var ids []string
	for _, o := range outcomes {
		if o.Status != models.MatchStatusMatched || o.ContributionID == "" {
			continue
		}
		if seen[o.ContributionID] {
			return fmt.Errorf("%w: %s", errContributionClaimed, o.ContributionID)
		}
		seen[o.ContributionID] = true
		ids = append(ids, o.ContributionID)
	}
	if len(ids) == 0 {
		return nil
	}

	var count int64
	if err := tx.Model(&MatchOutcomeRow{}).
		Where("status = ? AND contribution_id IN (?)", string(models.MatchStatusMatched), ids).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errContributionClaimed
	}
	return nil
}

// LatestSettled returns the newest MATCHED or DUPLICATE outcome for the dedup key
func (r *Repository) LatestSettled(ctx context.Context, dedupKey string) (*models.MatchOutcome, error) {
	var rows []MatchOutcomeRow
	if err := r.db.WithContext(ctx).
		Where("dedup_key = ? AND status IN (?)", dedupKey,
			[]string{string(models.MatchStatusMatched), string(models.MatchStatusDuplicate)}).
		Order("id DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load outcomes: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	o := outcomeFromRow(rows[0])
	return &o, nil
}

// ClaimedContributions maps each of the given contribution ids that has a
// persisted MATCHED outcome to the dedup key that matched it.
func (r *Repository) ClaimedContributions(ctx context.Context, contributionIDs []string) (map[string]string, error) {
	claimed := make(map[string]string)
	if len(contributionIDs) == 0 {
		return claimed, nil
	}

	var rows []MatchOutcomeRow
	if err := r.db.WithContext(ctx).
		Select("contribution_id", "dedup_key").
		Where("status = ? AND contribution_id IN (?)", string(models.MatchStatusMatched), contributionIDs).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load claimed contributions: %w", err)
	}
	for _, row := range rows {
		if _, ok := claimed[row.ContributionID]; !ok {
			claimed[row.ContributionID] = row.DedupKey
		}
	}
	return claimed, nil
}

// OutcomesByMessage returns every outcome recorded for the message, oldest first
func (r *Repository) OutcomesByMessage(ctx context.Context, messageID string) ([]models.MatchOutcome, error) {
	var rows []MatchOutcomeRow
	if err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load outcomes: %w", err)
	}

	outcomes := make([]models.MatchOutcome, 0, len(rows))
	for _, row := range rows {
		outcomes = append(outcomes, outcomeFromRow(row))
	}
	return outcomes, nil
}

// CountOutcomes returns the number of outcomes with the given status for a dedup key
func (r *Repository) CountOutcomes(ctx context.Context, dedupKey string, status models.MatchStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&MatchOutcomeRow{}).
		Where("dedup_key = ? AND status = ?", dedupKey, string(status)).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count outcomes: %w", err)
	}
	return count, nil
}
