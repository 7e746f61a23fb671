package coordinator

import (
	"context"
	"errors"
	"time"

	"tuleva/camt-reconciler/internal/logging"
)

// Runner performs one reconciliation run
type Runner interface {
	RunReconciliation(ctx context.Context) (*RunSummary, error)
}

// Schedule runs immediately and then every interval until ctx is done.
// Failed runs are logged and reported to onRun; they do not stop the schedule.
// Cancelling ctx stops dequeuing in the current run and ends the schedule.
func Schedule(ctx context.Context, runner Runner, interval time.Duration, logger logging.Logger, onRun func(*RunSummary, error)) error {
	if interval <= 0 {
		return errors.New("schedule interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		summary, err := runner.RunReconciliation(ctx)
		if err != nil {
			logger.Error("Reconciliation run failed",
				logging.F(logging.FieldAlert, true),
				logging.F(logging.FieldError, err))
		}
		if onRun != nil {
			onRun(summary, err)
		}

		if ctx.Err() == nil {
			select {
			case <-ctx.Done():
			case <-ticker.C:
				continue
			}
		}
		logger.Info("Schedule stopped")
		return nil
	}
}
