package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tuleva/camt-reconciler/internal/logging"
)

// Keeper renews a lease in the background until stopped or until the lease is
// lost. A failed renewal is retried while the current lease is unexpired.
type Keeper struct {
	svc      Service
	ttl      time.Duration
	interval time.Duration
	logger   logging.Logger
	now      func() time.Time

	mu    sync.Mutex
	lease Lease
	err   error

	lost     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// StartKeeper starts renewing lease every interval. A non-positive interval
// defaults to a third of the ttl.
func StartKeeper(svc Service, lease Lease, ttl, interval time.Duration, logger logging.Logger) *Keeper {
	if interval <= 0 {
		interval = ttl / 3
	}
	k := &Keeper{
		svc:      svc,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		lease:    lease,
		lost:     make(chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go k.run()
	return k
}

func (k *Keeper) run() {
	defer close(k.done)

	timer := time.NewTimer(k.interval)
	defer timer.Stop()

	for {
		select {
		case <-k.stop:
			return
		case <-timer.C:
		}

		err := k.renew()
		if err == nil {
			timer.Reset(k.interval)
			continue
		}

		lease := k.Lease()
		remaining := lease.Until.Sub(k.now())
		if errors.Is(err, ErrLeaseLost) || remaining <= 0 {
			if !errors.Is(err, ErrLeaseLost) {
				err = fmt.Errorf("%w: expired at %s: %w", ErrLeaseLost, lease.Until.Format(time.RFC3339Nano), err)
			}
			k.fail(err)
			return
		}

		// the lease is still ours until it expires
		k.logger.WithError(err).Warn("Failed to renew lock lease, retrying",
			logging.F(logging.FieldLockName, lease.Name),
			logging.F("lock_until", lease.Until))
		timer.Reset(min(k.interval, remaining))
	}
}

func (k *Keeper) fail(err error) {
	k.mu.Lock()
	k.err = err
	k.mu.Unlock()

	k.logger.WithError(err).Error("Failed to renew lock lease",
		logging.F(logging.FieldLockName, k.Lease().Name))
	close(k.lost)
}

func (k *Keeper) renew() error {
	ctx, cancel := context.WithTimeout(context.Background(), k.interval)
	defer cancel()

	renewed, err := k.svc.Renew(ctx, k.Lease(), k.ttl)
	if err != nil {
		return err
	}

	k.mu.Lock()
	k.lease = renewed
	k.mu.Unlock()

	k.logger.Debug("Renewed lock lease",
		logging.F(logging.FieldLockName, renewed.Name),
		logging.F("lock_until", renewed.Until))
	return nil
}

// Lost is closed once the service reported the lease lost or the lease
// expired without a successful renewal
func (k *Keeper) Lost() <-chan struct{} {
	return k.lost
}

// Check returns nil while the lease is held. Once it is lost or past its
// expiry, the error wraps ErrLeaseLost.
func (k *Keeper) Check() error {
	select {
	case <-k.lost:
		return k.Err()
	default:
	}
	if until := k.Lease().Until; !k.now().Before(until) {
		return fmt.Errorf("%w: expired at %s", ErrLeaseLost, until.Format(time.RFC3339Nano))
	}
	return nil
}

// Err returns the renewal error, if any
func (k *Keeper) Err() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.err
}

// Lease returns the most recently renewed lease
func (k *Keeper) Lease() Lease {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lease
}

// Stop ends renewal and waits for the background goroutine
func (k *Keeper) Stop() {
	k.stopOnce.Do(func() { close(k.stop) })
	<-k.done
}
