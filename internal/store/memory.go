package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tuleva/camt-reconciler/internal/models"
)

// MemoryStore is an in-memory ContributionStore for tests and dry runs
type MemoryStore struct {
	mu            sync.Mutex
	contributions map[string]models.ExpectedContribution
	markCalls     int

	// Error injection for testing failure paths
	ListPendingError error
	MarkMatchedError error
}

// NewMemoryStore creates a store holding the given contributions
func NewMemoryStore(contributions ...models.ExpectedContribution) *MemoryStore {
	s := &MemoryStore{contributions: make(map[string]models.ExpectedContribution)}
	s.Add(contributions...)
	return s
}

// Add inserts or replaces contributions
func (s *MemoryStore) Add(contributions ...models.ExpectedContribution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range contributions {
		s.contributions[c.ID] = c
	}
}

// Get returns a copy of a contribution
func (s *MemoryStore) Get(id string) (models.ExpectedContribution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contributions[id]
	return c, ok
}

// MarkCalls returns how many times MarkMatched changed a contribution
func (s *MemoryStore) MarkCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markCalls
}

// ListPending returns PENDING contributions for the scope, ordered by id
func (s *MemoryStore) ListPending(_ context.Context, scope Scope) ([]models.ExpectedContribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListPendingError != nil {
		return nil, s.ListPendingError
	}

	all := make([]models.ExpectedContribution, 0, len(s.contributions))
	for _, c := range s.contributions {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return filterPending(all, scope), nil
}

// MarkMatched records the transaction reference on the contribution
func (s *MemoryStore) MarkMatched(_ context.Context, contributionID, transactionRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MarkMatchedError != nil {
		return s.MarkMatchedError
	}

	c, ok := s.contributions[contributionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, contributionID)
	}
	changed, err := markMatched(&c, transactionRef)
	if err != nil {
		return err
	}
	if changed {
		s.contributions[contributionID] = c
		s.markCalls++
	}
	return nil
}
