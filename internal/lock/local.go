package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type localEntry struct {
	token string
	until time.Time
}

// Local is an in-process lock service for single-instance deployments and tests
type Local struct {
	mu    sync.Mutex
	locks map[string]localEntry
	now   func() time.Time
}

// NewLocal creates an empty in-process lock service
func NewLocal() *Local {
	return &Local{
		locks: make(map[string]localEntry),
		now:   time.Now,
	}
}

// TryAcquire grants the lock if it is free or its lease expired
func (l *Local) TryAcquire(_ context.Context, name string, ttl time.Duration) (*Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.locks[name]; ok && e.until.After(now) {
		return nil, nil
	}

	lease := Lease{Name: name, Token: uuid.NewString(), Until: now.Add(ttl)}
	l.locks[name] = localEntry{token: lease.Token, until: lease.Until}
	return &lease, nil
}

// Renew extends the lease if it is still owned and unexpired
func (l *Local) Renew(_ context.Context, lease Lease, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.locks[lease.Name]
	if !ok || e.token != lease.Token || !e.until.After(now) {
		return lease, ErrLeaseLost
	}

	lease.Until = now.Add(ttl)
	l.locks[lease.Name] = localEntry{token: lease.Token, until: lease.Until}
	return lease, nil
}

// Release drops the lock if the lease still owns it
func (l *Local) Release(_ context.Context, lease Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.locks[lease.Name]; ok && e.token == lease.Token {
		delete(l.locks, lease.Name)
	}
	return nil
}
