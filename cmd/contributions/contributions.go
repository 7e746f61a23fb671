// Package contributions handles expected contribution maintenance commands
package contributions

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tuleva/camt-reconciler/cmd/root"
	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/store"
)

// Cmd represents the contributions command
var Cmd = &cobra.Command{
	Use:   "contributions",
	Short: "Manage expected contributions",
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import expected contributions from a CSV export",
	Long: `Import contributions exported by the member system. The CSV needs the columns
id, member_id, account, amount, currency, reference and created_at, separated by
the configured report delimiter. Contributions already known by id are left untouched.

Example:
  camt-reconciler contributions import -i contributions.csv`,
	RunE: importFunc,
}

func init() {
	Cmd.AddCommand(importCmd)
}

func importFunc(cmd *cobra.Command, args []string) error {
	logger := root.GetLogrusAdapter()
	cfg := root.GetConfig()

	input := root.SharedFlags.Input
	if input == "" {
		return errors.New("input file must be specified with --input")
	}

	file, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("error opening CSV file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close file")
		}
	}()

	contributions, err := store.ReadContributionsCSV(file, cfg.Delimiter())
	if err != nil {
		return err
	}
	logger.Info("Read contributions",
		logging.F(logging.FieldInputFile, input),
		logging.F(logging.FieldCount, len(contributions)))

	added, err := store.NewYAMLStore(cfg.Contributions.File, logger).Import(contributions)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d contribution(s)\n", added, len(contributions))
	return err
}
