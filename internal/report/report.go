// Package report renders reconciliation results for operators: run summaries,
// normalized transactions and persisted match outcomes.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gocarina/gocsv"

	"tuleva/camt-reconciler/internal/coordinator"
	"tuleva/camt-reconciler/internal/currencyutils"
	"tuleva/camt-reconciler/internal/dateutils"
	"tuleva/camt-reconciler/internal/fileutils"
	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/models"
)

// Output formats
const (
	FormatText = "text"
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// DefaultDelimiter separates CSV columns unless configured otherwise
const DefaultDelimiter = ','

// TransactionRow is the CSV layout of one normalized transaction
type TransactionRow struct {
	DedupKey         string `csv:"dedup_key"`
	MessageID        string `csv:"message_id"`
	EntryIndex       int    `csv:"entry_index"`
	BookingDate      string `csv:"booking_date"`
	ValueDate        string `csv:"value_date"`
	Amount           string `csv:"amount"`
	Currency         string `csv:"currency"`
	Reference        string `csv:"reference"`
	ReferenceSource  string `csv:"reference_source"`
	LowConfidence    bool   `csv:"low_confidence"`
	Reversal         bool   `csv:"reversal"`
	CounterpartyName string `csv:"counterparty_name"`
	CounterpartyIBAN string `csv:"counterparty_iban"`
	ExternalID       string `csv:"external_id"`
	EndToEndID       string `csv:"end_to_end_id"`
}

// OutcomeRow is the CSV layout of one persisted match outcome
type OutcomeRow struct {
	CreatedAt      string `csv:"created_at"`
	MessageID      string `csv:"message_id"`
	EntryIndex     int    `csv:"entry_index"`
	DedupKey       string `csv:"dedup_key"`
	Status         string `csv:"status"`
	Reason         string `csv:"reason"`
	ContributionID string `csv:"contribution_id"`
	CandidateIDs   string `csv:"candidate_ids"`
	Amount         string `csv:"amount"`
	Currency       string `csv:"currency"`
	Reference      string `csv:"reference"`
}

// Generator writes reports
type Generator struct {
	logger    logging.Logger
	delimiter rune
}

// NewGenerator creates a generator. A zero delimiter selects DefaultDelimiter.
func NewGenerator(logger logging.Logger, delimiter rune) *Generator {
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}
	return &Generator{logger: logger, delimiter: delimiter}
}

// WriteSummary renders a run summary as text, CSV (one row per statement) or JSON
func (g *Generator) WriteSummary(w io.Writer, summary *coordinator.RunSummary, format string) error {
	if summary == nil {
		return fmt.Errorf("cannot write nil run summary")
	}
	switch strings.ToLower(format) {
	case FormatText, "":
		return writeSummaryText(w, summary)
	case FormatCSV:
		rows := summary.Statements
		if rows == nil {
			rows = []coordinator.StatementResult{}
		}
		return g.marshalCSV(w, &rows)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("failed to marshal JSON summary: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

// WriteTransactions writes normalized transactions as CSV
func (g *Generator) WriteTransactions(w io.Writer, transactions []models.NormalizedTransaction) error {
	rows := make([]TransactionRow, len(transactions))
	for i, tx := range transactions {
		rows[i] = TransactionRow{
			DedupKey:         tx.DedupKey,
			MessageID:        tx.MessageID,
			EntryIndex:       tx.EntryIndex,
			BookingDate:      dateutils.ToISODate(tx.BookingDate),
			ValueDate:        dateutils.ToISODate(tx.ValueDate),
			Amount:           tx.Amount.StringFixed(currencyutils.MinorUnits(tx.Currency)),
			Currency:         tx.Currency,
			Reference:        tx.Reference,
			ReferenceSource:  string(tx.ReferenceSource),
			LowConfidence:    tx.LowConfidence,
			Reversal:         tx.Reversal,
			CounterpartyName: tx.Counterparty.Name,
			CounterpartyIBAN: tx.Counterparty.IBAN,
			ExternalID:       tx.ExternalID,
			EndToEndID:       tx.EndToEndID,
		}
	}
	return g.marshalCSV(w, &rows)
}

// WriteOutcomes writes match outcomes as CSV
func (g *Generator) WriteOutcomes(w io.Writer, outcomes []models.MatchOutcome) error {
	rows := make([]OutcomeRow, len(outcomes))
	for i, o := range outcomes {
		rows[i] = OutcomeRow{
			CreatedAt:      dateutils.FormatISODateTime(o.CreatedAt, nil),
			MessageID:      o.MessageID,
			EntryIndex:     o.EntryIndex,
			DedupKey:       o.DedupKey,
			Status:         string(o.Status),
			Reason:         o.Reason,
			ContributionID: o.ContributionID,
			CandidateIDs:   strings.Join(o.CandidateIDs, " "),
			Amount:         currencyutils.FromMinorUnits(o.AmountMinor, o.Currency).StringFixed(currencyutils.MinorUnits(o.Currency)),
			Currency:       o.Currency,
			Reference:      o.Reference,
		}
	}
	return g.marshalCSV(w, &rows)
}

// WriteFile creates path, including missing directories, and fills it with write
func (g *Generator) WriteFile(path string, write func(io.Writer) error) (err error) {
	file, err := fileutils.CreateFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("error closing %s: %w", path, cerr)
		}
	}()

	if err := write(file); err != nil {
		return err
	}
	g.logger.Info("Report written", logging.F(logging.FieldOutputFile, path))
	return nil
}

func (g *Generator) marshalCSV(w io.Writer, rows interface{}) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = g.delimiter
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csvWriter)); err != nil {
		g.logger.Error("Failed to marshal CSV", logging.F(logging.FieldError, err))
		return fmt.Errorf("error writing CSV data: %w", err)
	}
	return nil
}

func writeSummaryText(w io.Writer, s *coordinator.RunSummary) error {
	totals := s.Totals()
	fmt.Fprintf(w, "Run %s: %s (%d fetched, %s)\n", s.RunID, s.Status, s.Fetched, s.Duration().Round(time.Millisecond))
	if s.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", s.Error)
	}
	if len(s.Statements) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MESSAGE\tSTATUS\tMATCHED\tAMBIGUOUS\tUNMATCHED\tDUPLICATE\tERRORED")
	for _, r := range s.Statements {
		id := r.MessageID
		if id == "" {
			id = r.EnvelopeID
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			id, r.Status, r.Matched, r.Ambiguous, r.Unmatched, r.Duplicate, r.Errored)
	}
	fmt.Fprintf(tw, "TOTAL\t\t%d\t%d\t%d\t%d\t%d\n",
		totals.Matched, totals.Ambiguous, totals.Unmatched, totals.Duplicate, totals.Errored)
	return tw.Flush()
}
