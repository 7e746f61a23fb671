// Package outcomes handles the persisted match outcome listing command
package outcomes

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"tuleva/camt-reconciler/cmd/root"
)

// MessageID selects the bank message whose outcomes are listed
var MessageID string

// Cmd represents the outcomes command
var Cmd = &cobra.Command{
	Use:   "outcomes",
	Short: "List the persisted match outcomes of a message",
	Long: `List every match outcome recorded for a bank message id, in entry order, as CSV.

Example:
  camt-reconciler outcomes --message MSG-2024-001 -o outcomes.csv`,
	RunE: outcomesFunc,
}

func init() {
	Cmd.Flags().StringVarP(&MessageID, "message", "m", "", "Bank message id (GrpHdr/MsgId)")
}

func outcomesFunc(cmd *cobra.Command, args []string) error {
	if MessageID == "" {
		return errors.New("message id must be specified with --message")
	}

	appContainer, err := root.GetContainer()
	if err != nil {
		return err
	}

	outcomes, err := appContainer.GetRepository().OutcomesByMessage(cmd.Context(), MessageID)
	if err != nil {
		return err
	}

	gen := appContainer.GetReportGenerator()
	return root.WithOutput(cmd, gen, func(w io.Writer) error {
		return gen.WriteOutcomes(w, outcomes)
	})
}
