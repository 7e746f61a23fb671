package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tuleva/camt-reconciler/internal/lock"
)

// GormLocker implements lock.Service on the shedlock table so that every
// instance sharing the database competes for the same lease.
type GormLocker struct {
	db    *gorm.DB
	owner string
	now   func() time.Time
}

// NewGormLocker creates a locker identifying itself as owner (typically the hostname)
func NewGormLocker(db *gorm.DB, owner string) *GormLocker {
	return &GormLocker{db: db, owner: owner, now: time.Now}
}

// TryAcquire inserts the lock row, or takes over a row whose lease expired
func (l *GormLocker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (*lock.Lease, error) {
	now := l.now()
	lease := lock.Lease{
		Name:  name,
		Token: fmt.Sprintf("%s/%s", l.owner, uuid.NewString()),
		Until: now.Add(ttl),
	}

	row := LockRow{
		Name:      name,
		LockUntil: toMillis(lease.Until),
		LockedAt:  toMillis(now),
		LockedBy:  lease.Token,
	}
	res := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to insert lock %s: %w", name, res.Error)
	}
	if res.RowsAffected == 1 {
		return &lease, nil
	}

	res = l.db.WithContext(ctx).Model(&LockRow{}).
		Where("name = ? AND lock_until <= ?", name, toMillis(now)).
		Updates(map[string]interface{}{
			"lock_until": row.LockUntil,
			"locked_at":  row.LockedAt,
			"locked_by":  row.LockedBy,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to take over lock %s: %w", name, res.Error)
	}
	if res.RowsAffected == 1 {
		return &lease, nil
	}
	return nil, nil
}

// Renew extends the lease while this holder still owns it
func (l *GormLocker) Renew(ctx context.Context, lease lock.Lease, ttl time.Duration) (lock.Lease, error) {
	now := l.now()
	until := now.Add(ttl)

	res := l.db.WithContext(ctx).Model(&LockRow{}).
		Where("name = ? AND locked_by = ? AND lock_until > ?", lease.Name, lease.Token, toMillis(now)).
		Update("lock_until", toMillis(until))
	if res.Error != nil {
		return lease, fmt.Errorf("failed to renew lock %s: %w", lease.Name, res.Error)
	}
	if res.RowsAffected != 1 {
		return lease, lock.ErrLeaseLost
	}

	lease.Until = until
	return lease, nil
}

// Release deletes the lock row if this holder still owns it
func (l *GormLocker) Release(ctx context.Context, lease lock.Lease) error {
	res := l.db.WithContext(ctx).
		Where("name = ? AND locked_by = ?", lease.Name, lease.Token).
		Delete(&LockRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to release lock %s: %w", lease.Name, res.Error)
	}
	return nil
}
