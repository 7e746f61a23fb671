package persistence

import (
	"strings"
	"time"

	"tuleva/camt-reconciler/internal/models"
)

// ProcessingRecordRow is the idempotency ledger table
type ProcessingRecordRow struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	MessageID   string `gorm:"size:140;not null;uniqueIndex:idx_processing_key"`
	ContentHash string `gorm:"size:64;not null;uniqueIndex:idx_processing_key"`
	Status      string `gorm:"size:16;not null;index"`
	Version     int64  `gorm:"not null"`
	Attempts    int    `gorm:"not null"`
	StartedAt   int64  `gorm:"not null"`
	CompletedAt *int64
	UpdateTime  int64 `gorm:"not null"`
}

// TableName overrides the table name
func (ProcessingRecordRow) TableName() string {
	return "processing_records"
}

// MatchOutcomeRow is one append-only match outcome
type MatchOutcomeRow struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	DedupKey       string `gorm:"size:64;not null;index"`
	MessageID      string `gorm:"size:140;not null;index"`
	ContentHash    string `gorm:"size:64;not null"`
	EntryIndex     int    `gorm:"not null"`
	Status         string `gorm:"size:16;not null;index"`
	ContributionID string `gorm:"size:64;index"`
	CandidateIDs   string `gorm:"type:text"`
	Reason         string `gorm:"size:64;not null"`
	AmountMinor    int64  `gorm:"not null"`
	Currency       string `gorm:"size:3;not null"`
	Reference      string `gorm:"size:140"`
	CreateTime     int64  `gorm:"not null"`
}

// TableName overrides the table name
func (MatchOutcomeRow) TableName() string {
	return "match_outcomes"
}

// LockRow is a named lease, in the layout used by ShedLock
type LockRow struct {
	Name      string `gorm:"primaryKey;size:64"`
	LockUntil int64  `gorm:"not null"`
	LockedAt  int64  `gorm:"not null"`
	LockedBy  string `gorm:"size:255;not null"`
}

// TableName overrides the table name
func (LockRow) TableName() string {
	return "shedlock"
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func recordFromRow(row ProcessingRecordRow) *models.ProcessingRecord {
	rec := &models.ProcessingRecord{
		MessageID:   row.MessageID,
		ContentHash: row.ContentHash,
		Status:      models.ProcessingStatus(row.Status),
		Version:     row.Version,
		Attempts:    row.Attempts,
		StartedAt:   fromMillis(row.StartedAt),
	}
	if row.CompletedAt != nil {
		completed := fromMillis(*row.CompletedAt)
		rec.CompletedAt = &completed
	}
	return rec
}

func outcomeToRow(o models.MatchOutcome) MatchOutcomeRow {
	return MatchOutcomeRow{
		DedupKey:       o.DedupKey,
		MessageID:      o.MessageID,
		ContentHash:    o.ContentHash,
		EntryIndex:     o.EntryIndex,
		Status:         string(o.Status),
		ContributionID: o.ContributionID,
		CandidateIDs:   strings.Join(o.CandidateIDs, ","),
		Reason:         o.Reason,
		AmountMinor:    o.AmountMinor,
		Currency:       o.Currency,
		Reference:      o.Reference,
		CreateTime:     toMillis(o.CreatedAt),
	}
}

func outcomeFromRow(row MatchOutcomeRow) models.MatchOutcome {
	var candidates []string
	if row.CandidateIDs != "" {
		candidates = strings.Split(row.CandidateIDs, ",")
	}
	return models.MatchOutcome{
		DedupKey:       row.DedupKey,
		MessageID:      row.MessageID,
		ContentHash:    row.ContentHash,
		EntryIndex:     row.EntryIndex,
		Status:         models.MatchStatus(row.Status),
		ContributionID: row.ContributionID,
		CandidateIDs:   candidates,
		Reason:         row.Reason,
		AmountMinor:    row.AmountMinor,
		Currency:       row.Currency,
		Reference:      row.Reference,
		CreatedAt:      fromMillis(row.CreateTime),
	}
}
