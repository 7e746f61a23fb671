// Package lock defines the lease-based lock that keeps reconciliation runs
// exclusive across instances.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLeaseLost is returned by Renew when the lease expired or was taken over
var ErrLeaseLost = errors.New("lock lease lost")

// Lease is a time-bounded ownership of a named lock
type Lease struct {
	Name  string
	Token string
	Until time.Time
}

// Service grants and maintains leases
type Service interface {
	// TryAcquire returns nil, nil when another holder owns an unexpired lease.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error)
	// Renew extends an owned lease. It fails with ErrLeaseLost once the lease
	// expired or another holder acquired the lock.
	Renew(ctx context.Context, lease Lease, ttl time.Duration) (Lease, error)
	// Release gives the lock up. Releasing a lost lease is not an error.
	Release(ctx context.Context, lease Lease) error
}
