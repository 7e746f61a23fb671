// Package schedule handles the periodic reconciliation command
package schedule

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tuleva/camt-reconciler/cmd/common"
	"tuleva/camt-reconciler/cmd/root"
	"tuleva/camt-reconciler/internal/coordinator"
	"tuleva/camt-reconciler/internal/logging"
)

var interval time.Duration

// Cmd represents the schedule command
var Cmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run reconciliation periodically",
	Long: `Run a reconciliation pass immediately and then at every interval until
interrupted. Several instances may run side by side: only the one holding the
lock processes messages, the others skip the run.

Example:
  camt-reconciler schedule --interval 5m`,
	RunE: scheduleFunc,
}

func init() {
	Cmd.Flags().DurationVar(&interval, "interval", 0, "Time between runs; default from config")
}

func scheduleFunc(cmd *cobra.Command, args []string) error {
	logger := root.GetLogrusAdapter()

	appContainer, err := root.GetContainer()
	if err != nil {
		return err
	}

	every := interval
	if every <= 0 {
		every = appContainer.GetConfig().Reconciliation.Interval
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Reconciliation schedule started", logging.F("interval", every.String()))
	return coordinator.Schedule(ctx, appContainer.GetCoordinator(), every, logger,
		func(summary *coordinator.RunSummary, err error) {
			if runErr := common.RunError(summary, err); runErr != nil && err == nil {
				logger.Warn("Reconciliation run needs attention", logging.F(logging.FieldError, runErr))
			}
		})
}
