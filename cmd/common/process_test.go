package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"tuleva/camt-reconciler/internal/coordinator"
	"tuleva/camt-reconciler/internal/report"
)

func TestRunError(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		summary *coordinator.RunSummary
		err     error
		wantErr error
		wantMsg string
	}{
		{name: "run error wins", summary: &coordinator.RunSummary{Status: coordinator.RunFailed}, err: boom, wantErr: boom},
		{name: "completed", summary: &coordinator.RunSummary{Status: coordinator.RunCompleted}},
		{name: "skipped", summary: &coordinator.RunSummary{Status: coordinator.RunSkipped}},
		{name: "nil summary", summary: nil},
		{
			name:    "failed",
			summary: &coordinator.RunSummary{RunID: "r1", Status: coordinator.RunFailed, Error: "lock lost"},
			wantMsg: "reconciliation run r1 failed: lock lost",
		},
		{
			name: "partial",
			summary: &coordinator.RunSummary{Status: coordinator.RunPartial, Statements: []coordinator.StatementResult{
				{Status: coordinator.StatementProcessed},
				{Status: coordinator.StatementMalformed},
			}},
			wantErr: ErrPartialRun,
			wantMsg: "reconciliation run incomplete: 1 of 2 statement(s) need attention",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RunError(tt.summary, tt.err)
			if tt.wantErr == nil && tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.EqualError(t, err, tt.wantMsg)
			}
		})
	}
}

func TestReportFormat(t *testing.T) {
	assert.Equal(t, report.FormatJSON, ReportFormat(report.FormatJSON))
	assert.Equal(t, report.FormatText, ReportFormat(""), "no config loaded")
}
