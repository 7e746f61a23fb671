package matcher

import "sync"

// ClaimSet tracks contributions and dedup keys consumed during one run. All
// candidate selection happens under its lock, so two statements processed
// concurrently never claim the same contribution.
type ClaimSet struct {
	mu      sync.Mutex
	claimed map[string]string // contribution id -> dedup key
	settled map[string]bool   // dedup keys matched in this run
}

// NewClaimSet creates an empty claim set for one run
func NewClaimSet() *ClaimSet {
	return &ClaimSet{
		claimed: make(map[string]string),
		settled: make(map[string]bool),
	}
}

// IsClaimed reports whether the contribution was claimed in this run
func (c *ClaimSet) IsClaimed(contributionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.claimed[contributionID]
	return ok
}

// ClaimedBy returns the dedup key that claimed the contribution
func (c *ClaimSet) ClaimedBy(contributionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.claimed[contributionID]
	return key, ok
}

// Len returns the number of claimed contributions
func (c *ClaimSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claimed)
}

// Release returns the claims made by the given dedup keys, used when a
// statement's outcomes are discarded before they were persisted.
func (c *ClaimSet) Release(dedupKeys ...string) {
	if len(dedupKeys) == 0 {
		return
	}
	keys := make(map[string]bool, len(dedupKeys))
	for _, k := range dedupKeys {
		keys[k] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, key := range c.claimed {
		if keys[key] {
			delete(c.claimed, id)
		}
	}
	for k := range keys {
		delete(c.settled, k)
	}
}

// must be called with mu held
func (c *ClaimSet) claimLocked(contributionID, dedupKey string) {
	c.claimed[contributionID] = dedupKey
	c.settled[dedupKey] = true
}

// must be called with mu held
func (c *ClaimSet) isClaimedLocked(contributionID string) bool {
	_, ok := c.claimed[contributionID]
	return ok
}
