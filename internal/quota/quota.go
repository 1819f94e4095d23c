// Package quota tracks the per-day send ceiling for a sender identity.
// Usage is persisted per UTC day; rollover is logical, the tracker simply
// reads the row for the current day and historical days are retained.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Store is the persistence surface the tracker needs. IncrementQuota must
// be atomic with respect to the limit: it returns domain.ErrQuotaExceeded
// without incrementing when the day's count has already reached limit.
type Store interface {
	QuotaUsed(ctx context.Context, userID int, day time.Time) (int, error)
	IncrementQuota(ctx context.Context, userID int, day time.Time, limit int) (*domain.QuotaUsageEntry, error)
}

// Tracker enforces the daily send quota for one user identity.
type Tracker struct {
	store      Store
	userID     int
	dailyLimit int
	now        func() time.Time
}

// NewTracker creates a quota tracker with the given daily send limit.
func NewTracker(store Store, userID, dailyLimit int) *Tracker {
	return &Tracker{
		store:      store,
		userID:     userID,
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
}

// SetClock overrides the tracker's clock (for tests).
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// DailyLimit returns the configured ceiling.
func (t *Tracker) DailyLimit() int { return t.dailyLimit }

// Used returns the number of sends consumed for the current UTC day.
func (t *Tracker) Used(ctx context.Context) (int, error) {
	return t.store.QuotaUsed(ctx, t.userID, t.day())
}

// Remaining returns the sends left for the current UTC day, floored at zero.
func (t *Tracker) Remaining(ctx context.Context) (int, error) {
	used, err := t.Used(ctx)
	if err != nil {
		return 0, err
	}
	remaining := t.dailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// CanSend reports whether at least one send is available today.
func (t *Tracker) CanSend(ctx context.Context) (bool, error) {
	remaining, err := t.Remaining(ctx)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// Consume atomically claims one send against today's quota and returns the
// new used count. Returns domain.ErrQuotaExceeded when the day is exhausted;
// the counter is not incremented in that case.
func (t *Tracker) Consume(ctx context.Context) (int, error) {
	entry, err := t.store.IncrementQuota(ctx, t.userID, t.day(), t.dailyLimit)
	if err != nil {
		return 0, fmt.Errorf("consuming send quota: %w", err)
	}
	if entry.EmailsSent >= t.dailyLimit {
		logger.Warn("daily send quota exhausted", "used", entry.EmailsSent, "limit", t.dailyLimit)
	}
	return entry.EmailsSent, nil
}

// day returns the UTC midnight key for the current day.
func (t *Tracker) day() time.Time {
	u := t.now().UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
