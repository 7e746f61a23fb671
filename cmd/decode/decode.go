// Package decode handles the offline statement inspection command
package decode

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"tuleva/camt-reconciler/cmd/root"
	"tuleva/camt-reconciler/internal/camtparser"
	"tuleva/camt-reconciler/internal/fileutils"
	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/models"
	"tuleva/camt-reconciler/internal/normalizer"
	"tuleva/camt-reconciler/internal/report"
)

// Cmd represents the decode command
var Cmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a camt.052/053 file into normalized transactions",
	Long: `Decode a camt.052 or camt.053 file and write its normalized transactions as CSV.
Nothing is matched or persisted. Entries that fail validation are logged and left out.

Example:
  camt-reconciler decode -i statement.xml -o transactions.csv`,
	RunE: decodeFunc,
}

func decodeFunc(cmd *cobra.Command, args []string) error {
	logger := root.GetLogrusAdapter()
	cfg := root.GetConfig()

	input := root.SharedFlags.Input
	if input == "" {
		return errors.New("input file must be specified with --input")
	}
	logger.Info("Decoding statement", logging.F(logging.FieldInputFile, input))

	payload, err := fileutils.ReadFile(input)
	if err != nil {
		return err
	}

	codec := camtparser.NewCodec(logger, cfg.Matching.SupportedVersions)
	msg, err := codec.Decode(payload, models.MessageTypeUnknown)
	if err != nil {
		return err
	}
	for _, entryErr := range msg.EntryErrors {
		logger.Warn("Entry skipped",
			logging.F(logging.FieldMessageID, msg.MessageID),
			logging.F(logging.FieldError, entryErr))
	}

	norm, err := normalizer.NewWithPatterns(cfg.Matching.ReferencePatterns)
	if err != nil {
		return err
	}
	transactions := make([]models.NormalizedTransaction, 0, len(msg.Entries))
	for _, raw := range msg.Entries {
		transactions = append(transactions, norm.Normalize(raw, msg.MessageID))
	}

	gen := report.NewGenerator(logger, cfg.Delimiter())
	return root.WithOutput(cmd, gen, func(w io.Writer) error {
		return gen.WriteTransactions(w, transactions)
	})
}
