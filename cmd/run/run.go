// Package run handles the single reconciliation pass command
package run

import (
	"github.com/spf13/cobra"

	"tuleva/camt-reconciler/cmd/common"
	"tuleva/camt-reconciler/cmd/root"
)

var format string

// Cmd represents the run command
var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation pass",
	Long: `Acquire the reconciliation lock, fetch every pending bank message from the
source and match its entries against the pending contributions. The run summary
is written to standard output or to the --output file.

Example:
  camt-reconciler run --format json -o summary.json`,
	RunE: runFunc,
}

func init() {
	Cmd.Flags().StringVarP(&format, "format", "f", "", "Summary format (text, csv, json); default from config")
}

func runFunc(cmd *cobra.Command, args []string) error {
	logger := root.GetLogrusAdapter()
	logger.Info("Reconciliation run command called")

	appContainer, err := root.GetContainer()
	if err != nil {
		return err
	}

	summary, runErr := appContainer.GetCoordinator().RunReconciliation(cmd.Context())
	if summary != nil {
		if err := common.WriteSummary(cmd, appContainer.GetReportGenerator(), summary, common.ReportFormat(format)); err != nil {
			return err
		}
	}
	return common.RunError(summary, runErr)
}
