package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuleva/camt-reconciler/internal/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLocalWithClock() (*Local, *fakeClock) {
	clock := &fakeClock{now: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLocal()
	l.now = clock.Now
	return l, clock
}

func TestLocal_Lifecycle(t *testing.T) {
	l, clock := newLocalWithClock()
	ctx := context.Background()

	lease, err := l.TryAcquire(ctx, "recon", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, "recon", lease.Name)
	assert.NotEmpty(t, lease.Token)

	other, err := l.TryAcquire(ctx, "recon", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, other, "held lock must not be granted")

	clock.Advance(30 * time.Second)
	renewed, err := l.Renew(ctx, *lease, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Minute), renewed.Until)

	require.NoError(t, l.Release(ctx, renewed))
	again, err := l.TryAcquire(ctx, "recon", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestLocal_ExpiredLeaseIsTakenOver(t *testing.T) {
	l, clock := newLocalWithClock()
	ctx := context.Background()

	first, err := l.TryAcquire(ctx, "recon", time.Minute)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	second, err := l.TryAcquire(ctx, "recon", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)

	_, err = l.Renew(ctx, *first, time.Minute)
	assert.ErrorIs(t, err, ErrLeaseLost)

	// releasing a lost lease leaves the new holder alone
	require.NoError(t, l.Release(ctx, *first))
	blocked, err := l.TryAcquire(ctx, "recon", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, blocked)
}

func TestLocal_ConcurrentAcquireGrantsOnce(t *testing.T) {
	l := NewLocal()
	var granted int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := l.TryAcquire(context.Background(), "recon", time.Minute)
			assert.NoError(t, err)
			if lease != nil {
				atomic.AddInt32(&granted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), granted)
}

type countingService struct {
	Service
	renewals int32
	fail     error
}

func (s *countingService) Renew(ctx context.Context, lease Lease, ttl time.Duration) (Lease, error) {
	atomic.AddInt32(&s.renewals, 1)
	if s.fail != nil {
		return lease, s.fail
	}
	return s.Service.Renew(ctx, lease, ttl)
}

func TestKeeper_RenewsUntilStopped(t *testing.T) {
	svc := &countingService{Service: NewLocal()}
	lease, err := svc.TryAcquire(context.Background(), "recon", time.Second)
	require.NoError(t, err)

	k := StartKeeper(svc, *lease, time.Second, 10*time.Millisecond, logging.NewMockLogger())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&svc.renewals) >= 3 }, time.Second, 5*time.Millisecond)
	k.Stop()
	k.Stop()

	assert.NoError(t, k.Err())
	assert.True(t, k.Lease().Until.After(lease.Until))
	select {
	case <-k.Lost():
		t.Fatal("lease should not be reported lost")
	default:
	}
}

func TestKeeper_ReportsLostLease(t *testing.T) {
	svc := &countingService{Service: NewLocal(), fail: ErrLeaseLost}
	lease, err := svc.TryAcquire(context.Background(), "recon", time.Minute)
	require.NoError(t, err)

	logger := logging.NewMockLogger()
	k := StartKeeper(svc, *lease, time.Minute, 10*time.Millisecond, logger)
	defer k.Stop()

	select {
	case <-k.Lost():
	case <-time.After(time.Second):
		t.Fatal("expected the keeper to report a lost lease")
	}
	assert.ErrorIs(t, k.Err(), ErrLeaseLost)
	assert.ErrorIs(t, k.Check(), ErrLeaseLost)
	assert.Equal(t, int32(1), atomic.LoadInt32(&svc.renewals), "a taken-over lease is not retried")
	assert.True(t, logger.HasEntry("ERROR", "Failed to renew lock lease"))
}

func TestKeeper_RetriesTransientFailureUntilExpiry(t *testing.T) {
	svc := &countingService{Service: NewLocal(), fail: errors.New("lock table unreachable")}
	lease, err := svc.TryAcquire(context.Background(), "recon", 100*time.Millisecond)
	require.NoError(t, err)

	logger := logging.NewMockLogger()
	k := StartKeeper(svc, *lease, 100*time.Millisecond, 10*time.Millisecond, logger)
	defer k.Stop()

	select {
	case <-k.Lost():
		t.Fatal("lease reported lost while still valid")
	case <-time.After(50 * time.Millisecond):
	}
	assert.NoError(t, k.Check())
	assert.GreaterOrEqual(t, atomic.LoadInt32(&svc.renewals), int32(2))
	assert.True(t, logger.HasEntry("WARN", "Failed to renew lock lease, retrying"))

	select {
	case <-k.Lost():
	case <-time.After(time.Second):
		t.Fatal("expected the lease to be lost after it expired")
	}
	assert.ErrorIs(t, k.Err(), ErrLeaseLost)
	assert.ErrorContains(t, k.Err(), "unreachable")
	assert.False(t, k.Lease().Until.After(lease.Until))
}

type flakyService struct {
	Service
	failures int32
}

func (s *flakyService) Renew(ctx context.Context, lease Lease, ttl time.Duration) (Lease, error) {
	if atomic.AddInt32(&s.failures, -1) >= 0 {
		return lease, errors.New("timeout")
	}
	return s.Service.Renew(ctx, lease, ttl)
}

func TestKeeper_RecoversAfterTransientFailure(t *testing.T) {
	svc := &flakyService{Service: NewLocal(), failures: 2}
	lease, err := svc.TryAcquire(context.Background(), "recon", time.Second)
	require.NoError(t, err)

	k := StartKeeper(svc, *lease, time.Second, 10*time.Millisecond, logging.NewMockLogger())
	assert.Eventually(t, func() bool { return k.Lease().Until.After(lease.Until) }, time.Second, 5*time.Millisecond)
	k.Stop()

	assert.NoError(t, k.Err())
	assert.NoError(t, k.Check())
}

func TestKeeper_CheckReportsExpiredLease(t *testing.T) {
	svc := NewLocal()
	lease, err := svc.TryAcquire(context.Background(), "recon", time.Minute)
	require.NoError(t, err)

	k := StartKeeper(svc, *lease, time.Minute, time.Hour, logging.NewMockLogger())
	defer k.Stop()
	require.NoError(t, k.Check())

	k.now = func() time.Time { return lease.Until.Add(time.Millisecond) }
	assert.ErrorIs(t, k.Check(), ErrLeaseLost)
}

func TestStartKeeper_DefaultInterval(t *testing.T) {
	svc := NewLocal()
	lease, err := svc.TryAcquire(context.Background(), "recon", 300*time.Millisecond)
	require.NoError(t, err)

	k := StartKeeper(svc, *lease, 300*time.Millisecond, 0, logging.NewMockLogger())
	defer k.Stop()
	assert.Equal(t, 100*time.Millisecond, k.interval)
}
