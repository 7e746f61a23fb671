// Package common contains shared functionality for command handlers
package common

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tuleva/camt-reconciler/cmd/root"
	"tuleva/camt-reconciler/internal/coordinator"
	"tuleva/camt-reconciler/internal/report"
)

// ErrPartialRun is returned when a run left statements that need attention
var ErrPartialRun = errors.New("reconciliation run incomplete")

// ReportFormat returns the --format value, falling back to the configured report format
func ReportFormat(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg := root.GetConfig(); cfg != nil {
		return cfg.Report.Format
	}
	return report.FormatText
}

// WriteSummary writes the run summary to the --output file or standard output
func WriteSummary(cmd *cobra.Command, gen *report.Generator, summary *coordinator.RunSummary, format string) error {
	return root.WithOutput(cmd, gen, func(w io.Writer) error {
		return gen.WriteSummary(w, summary, format)
	})
}

// RunError turns a finished run into the command result. Skipped runs are not errors.
func RunError(summary *coordinator.RunSummary, err error) error {
	if err != nil {
		return err
	}
	if summary == nil {
		return nil
	}

	switch summary.Status {
	case coordinator.RunFailed:
		return fmt.Errorf("reconciliation run %s failed: %s", summary.RunID, summary.Error)
	case coordinator.RunPartial:
		var pending int
		for _, s := range summary.Statements {
			if !s.Status.IsSuccess() {
				pending++
			}
		}
		return fmt.Errorf("%w: %d of %d statement(s) need attention", ErrPartialRun, pending, len(summary.Statements))
	}
	return nil
}
