package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"tuleva/camt-reconciler/internal/currencyutils"
	"tuleva/camt-reconciler/internal/dateutils"
	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/models"
)

// ContributionRow is the CSV layout of a contribution export from the member system
type ContributionRow struct {
	ID        string `csv:"id"`
	MemberID  string `csv:"member_id"`
	Account   string `csv:"account"`
	Amount    string `csv:"amount"`
	Currency  string `csv:"currency"`
	Reference string `csv:"reference"`
	CreatedAt string `csv:"created_at"`
}

// ReadContributionsCSV parses a contribution export. Every row becomes a
// PENDING contribution; all invalid rows are reported together with their line.
func ReadContributionsCSV(r io.Reader, delimiter rune) ([]models.ExpectedContribution, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.TrimLeadingSpace = true

	var rows []ContributionRow
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		return nil, fmt.Errorf("error parsing contributions CSV: %w", err)
	}

	contributions := make([]models.ExpectedContribution, 0, len(rows))
	var errs []error
	for i, row := range rows {
		c, err := row.toContribution()
		if err != nil {
			// header is line 1
			errs = append(errs, fmt.Errorf("line %d: %w", i+2, err))
			continue
		}
		contributions = append(contributions, c)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return contributions, nil
}

func (row ContributionRow) toContribution() (models.ExpectedContribution, error) {
	id := strings.TrimSpace(row.ID)
	if id == "" {
		return models.ExpectedContribution{}, errors.New("id is required")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(row.Amount))
	if err != nil || !amount.IsPositive() {
		return models.ExpectedContribution{}, fmt.Errorf("%s: amount must be a positive decimal, got %q", id, row.Amount)
	}

	currency := currencyutils.NormalizeCode(row.Currency)
	if currency == "" {
		currency = "EUR"
	}
	if !currencyutils.IsValidCurrencyCode(currency) {
		return models.ExpectedContribution{}, fmt.Errorf("%s: invalid currency %q", id, row.Currency)
	}

	reference := strings.TrimSpace(row.Reference)
	if reference == "" {
		return models.ExpectedContribution{}, fmt.Errorf("%s: reference is required", id)
	}

	createdAt, err := parseCreatedAt(row.CreatedAt)
	if err != nil {
		return models.ExpectedContribution{}, fmt.Errorf("%s: %w", id, err)
	}

	return models.ExpectedContribution{
		ID:        id,
		MemberID:  strings.TrimSpace(row.MemberID),
		Account:   strings.TrimSpace(row.Account),
		Amount:    amount,
		Currency:  currency,
		Reference: reference,
		CreatedAt: createdAt,
		Status:    models.ContributionPending,
	}, nil
}

func parseCreatedAt(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, errors.New("created_at is required")
	}
	if t, err := dateutils.ParseISODateTime(s); err == nil {
		return t.UTC(), nil
	}
	return dateutils.ParseISODate(s)
}

// Import adds the contributions whose id is not in the file yet and returns
// how many were added. Existing contributions are never overwritten.
func (s *YAMLStore) Import(contributions []models.ExpectedContribution) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return 0, err
	}

	known := make(map[string]bool, len(all)+len(contributions))
	for _, c := range all {
		known[c.ID] = true
	}

	added := 0
	for _, c := range contributions {
		if known[c.ID] {
			s.logger.Debug("Contribution already known, skipping",
				logging.F(logging.FieldContributionID, c.ID))
			continue
		}
		known[c.ID] = true
		all = append(all, c)
		added++
	}

	if added == 0 {
		return 0, nil
	}
	if err := s.save(all); err != nil {
		return 0, err
	}
	s.logger.Info("Imported contributions",
		logging.F(logging.FieldCount, added),
		logging.F(logging.FieldOutputFile, s.path))
	return added, nil
}
