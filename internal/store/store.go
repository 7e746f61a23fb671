// Package store provides access to the expected contributions that bank
// transactions are reconciled against.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"tuleva/camt-reconciler/internal/fileutils"
	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/models"
)

var (
	// ErrNotFound is returned for an unknown contribution id
	ErrNotFound = errors.New("contribution not found")
	// ErrAlreadyMatched is returned when a contribution was matched to a different transaction
	ErrAlreadyMatched = errors.New("contribution already matched to another transaction")
	// ErrNotPending is returned when an expired contribution would be matched
	ErrNotPending = errors.New("contribution is not pending")
)

// Scope narrows the contributions listed for one statement
type Scope struct {
	// Account is the IBAN the statement belongs to; empty means all accounts.
	Account string
}

// ContributionStore is the system of record for expected contributions
type ContributionStore interface {
	ListPending(ctx context.Context, scope Scope) ([]models.ExpectedContribution, error)
	// MarkMatched is idempotent: marking the same contribution with the same
	// transaction reference again is a no-op.
	MarkMatched(ctx context.Context, contributionID, transactionRef string) error
}

type contributionsFile struct {
	Contributions []models.ExpectedContribution `yaml:"contributions"`
}

// YAMLStore keeps contributions in a YAML file. The file is re-read on every
// call so edits made by other tools are picked up between runs.
type YAMLStore struct {
	path   string
	logger logging.Logger
	mu     sync.Mutex
}

// NewYAMLStore creates a store backed by the given file
func NewYAMLStore(path string, logger logging.Logger) *YAMLStore {
	return &YAMLStore{path: path, logger: logger}
}

// FindConfigFile looks for a file in the working directory, ./config, ./data
// and ~/.config/camt-reconciler, in that order.
func FindConfigFile(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		if fileutils.FileExists(filename) {
			return filename, nil
		}
		return "", os.ErrNotExist
	}

	locations := []string{
		filename,
		filepath.Join("config", filename),
		filepath.Join("data", filename),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(homeDir, ".config", "camt-reconciler", filename))
	}

	for _, location := range locations {
		if fileutils.FileExists(location) {
			return location, nil
		}
	}
	return "", os.ErrNotExist
}

// ListPending returns the PENDING contributions for the scope's account.
// A missing file means there is nothing to reconcile against.
func (s *YAMLStore) ListPending(_ context.Context, scope Scope) ([]models.ExpectedContribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	return filterPending(all, scope), nil
}

// MarkMatched records the transaction reference on the contribution
func (s *YAMLStore) MarkMatched(_ context.Context, contributionID, transactionRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}

	for i := range all {
		if all[i].ID != contributionID {
			continue
		}
		changed, err := markMatched(&all[i], transactionRef)
		if err != nil || !changed {
			return err
		}
		if err := s.save(all); err != nil {
			return err
		}
		s.logger.Debug("Marked contribution as matched",
			logging.F(logging.FieldContributionID, contributionID),
			logging.F(logging.FieldDedupKey, transactionRef))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, contributionID)
}

// All returns every contribution in the file
func (s *YAMLStore) All() ([]models.ExpectedContribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *YAMLStore) load() ([]models.ExpectedContribution, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("Contributions file not found", logging.F(logging.FieldInputFile, s.path))
			return nil, nil
		}
		return nil, fmt.Errorf("error reading contributions file: %w", err)
	}

	var file contributionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing contributions file %s: %w", s.path, err)
	}
	return file.Contributions, nil
}

func (s *YAMLStore) save(all []models.ExpectedContribution) error {
	data, err := yaml.Marshal(contributionsFile{Contributions: all})
	if err != nil {
		return fmt.Errorf("error marshaling contributions: %w", err)
	}
	if err := fileutils.WriteFile(s.path, data, models.PermissionReportFile); err != nil {
		return fmt.Errorf("error writing contributions file: %w", err)
	}
	return nil
}

func filterPending(all []models.ExpectedContribution, scope Scope) []models.ExpectedContribution {
	account := strings.TrimSpace(scope.Account)
	pending := make([]models.ExpectedContribution, 0, len(all))
	for _, c := range all {
		if !c.IsPending() {
			continue
		}
		if account != "" && c.Account != "" && !strings.EqualFold(c.Account, account) {
			continue
		}
		pending = append(pending, c)
	}
	return pending
}

// markMatched applies the transition and reports whether anything changed
func markMatched(c *models.ExpectedContribution, transactionRef string) (bool, error) {
	switch c.Status {
	case models.ContributionMatched:
		if c.MatchedTransactionRef == transactionRef {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s matched to %s", ErrAlreadyMatched, c.ID, c.MatchedTransactionRef)
	case models.ContributionPending:
		c.Status = models.ContributionMatched
		c.MatchedTransactionRef = transactionRef
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s is %s", ErrNotPending, c.ID, c.Status)
	}
}
