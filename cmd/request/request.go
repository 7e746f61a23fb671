// Package request handles camt.060 statement request commands
package request

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"tuleva/camt-reconciler/cmd/root"
	"tuleva/camt-reconciler/internal/camtparser"
	"tuleva/camt-reconciler/internal/logging"
)

const dateLayout = "2006-01-02"

// Flags of the request command
var (
	From     string
	To       string
	IntraDay bool
	Account  string
	DryRun   bool
)

// Cmd represents the request command
var Cmd = &cobra.Command{
	Use:   "request",
	Short: "Request a statement with camt.060",
	Long: `Build a camt.060 account reporting request and submit it to the message source.
Without --intraday a camt.053 statement is requested for the dates --from..--to;
with --intraday a camt.052 report for today is requested.

Example:
  camt-reconciler request --from 2024-01-01 --to 2024-01-31
  camt-reconciler request --intraday --dry-run`,
	RunE: requestFunc,
}

func init() {
	Cmd.Flags().StringVar(&From, "from", "", "First booking date (YYYY-MM-DD)")
	Cmd.Flags().StringVar(&To, "to", "", "Last booking date (YYYY-MM-DD), defaults to --from")
	Cmd.Flags().BoolVar(&IntraDay, "intraday", false, "Request today's intra-day report instead of a statement")
	Cmd.Flags().StringVar(&Account, "account", "", "Account IBAN; default from config")
	Cmd.Flags().BoolVar(&DryRun, "dry-run", false, "Print the request instead of submitting it")
}

func requestFunc(cmd *cobra.Command, args []string) error {
	logger := root.GetLogrusAdapter()
	cfg := root.GetConfig()

	account := Account
	if account == "" {
		account = cfg.Request.AccountIBAN
	}
	loc := cfg.Location()
	now := time.Now()

	var req camtparser.StatementRequest
	if IntraDay {
		req = camtparser.NewIntraDayRequest(account, loc, now)
	} else {
		from, to, err := period(From, To, loc)
		if err != nil {
			return err
		}
		req = camtparser.NewHistoricRequest(account, from, to, loc, now)
	}

	codec := camtparser.NewCodec(logger, cfg.Matching.SupportedVersions)
	payload, err := codec.Encode(req)
	if err != nil {
		return err
	}

	if DryRun {
		_, err := cmd.OutOrStdout().Write(payload)
		return err
	}

	appContainer, err := root.GetContainer()
	if err != nil {
		return err
	}
	ack, err := appContainer.GetSource().RequestStatement(cmd.Context(), payload)
	if err != nil {
		return fmt.Errorf("failed to submit statement request: %w", err)
	}

	logger.Info("Statement requested",
		logging.F(logging.FieldMessageID, ack.RequestID),
		logging.F(logging.FieldMessageType, req.Requested))
	return printAck(cmd.OutOrStdout(), ack.RequestID, ack.Location)
}

func period(from, to string, loc *time.Location) (time.Time, time.Time, error) {
	if from == "" {
		return time.Time{}, time.Time{}, errors.New("--from is required unless --intraday is set")
	}
	start, err := time.ParseInLocation(dateLayout, from, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date %q: %w", from, err)
	}
	if to == "" {
		return start, start, nil
	}
	end, err := time.ParseInLocation(dateLayout, to, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date %q: %w", to, err)
	}
	return start, end, nil
}

func printAck(w io.Writer, requestID, location string) error {
	_, err := fmt.Fprintf(w, "Request %s submitted to %s\n", requestID, location)
	return err
}
