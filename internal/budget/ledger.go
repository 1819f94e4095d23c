// Package budget implements the cost ledger: an append-only event log of
// priced AI operations with a derived per-day total and a daily ceiling.
// The ledger is the single source of truth for spend; there is no separate
// mutable counter. The day boundary is UTC midnight.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// StoppedReasonBudget is reported by batch runners that stop on the ceiling.
const StoppedReasonBudget = "BUDGET_LIMIT_REACHED"

// Store is the persistence surface the ledger needs.
type Store interface {
	AppendCostLog(ctx context.Context, entry *domain.CostLogEntry) error
	SumCosts(ctx context.Context, userID int, from, to time.Time) (float64, error)
	CostBreakdownByModel(ctx context.Context, userID int, from, to time.Time) (map[string]float64, error)
}

// Ledger records priced operations and enforces the daily budget ceiling
// for one user identity.
type Ledger struct {
	store      Store
	userID     int
	dailyLimit float64
	now        func() time.Time
}

// NewLedger creates a cost ledger with the given daily limit in USD.
func NewLedger(store Store, userID int, dailyLimit float64) *Ledger {
	return &Ledger{
		store:      store,
		userID:     userID,
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
}

// SetClock overrides the ledger's clock (for tests).
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// DailyLimit returns the configured ceiling.
func (l *Ledger) DailyLimit() float64 { return l.dailyLimit }

// Record appends a cost entry and returns the running total for the current
// UTC day, including the new entry. Entries are immutable once recorded.
func (l *Ledger) Record(ctx context.Context, op domain.Operation, model string, tokens int, cost float64, contactID, draftID *uuid.UUID) (float64, error) {
	entry := &domain.CostLogEntry{
		ID:         uuid.New(),
		UserID:     l.userID,
		Operation:  op,
		Model:      model,
		TokensUsed: tokens,
		Cost:       cost,
		ContactID:  contactID,
		DraftID:    draftID,
		CreatedAt:  l.now().UTC(),
	}
	if err := l.store.AppendCostLog(ctx, entry); err != nil {
		return 0, fmt.Errorf("recording cost: %w", err)
	}

	total, err := l.DailyCost(ctx)
	if err != nil {
		return 0, err
	}
	logger.Debug("cost recorded", "operation", string(op), "cost", fmt.Sprintf("%.4f", cost), "daily_total", fmt.Sprintf("%.4f", total))
	return total, nil
}

// DailyCost returns the summed cost for the current UTC day.
func (l *Ledger) DailyCost(ctx context.Context) (float64, error) {
	start, end := dayBounds(l.now())
	return l.store.SumCosts(ctx, l.userID, start, end)
}

// RemainingBudget returns the budget left for the current UTC day, floored
// at zero.
func (l *Ledger) RemainingBudget(ctx context.Context) (float64, error) {
	spent, err := l.DailyCost(ctx)
	if err != nil {
		return 0, err
	}
	remaining := l.dailyLimit - spent
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// WouldExceed reports whether adding amount to today's spend would push it
// over the daily limit. Batch callers must check this before each unit of
// work.
func (l *Ledger) WouldExceed(ctx context.Context, amount float64) (bool, error) {
	spent, err := l.DailyCost(ctx)
	if err != nil {
		return false, err
	}
	return spent+amount > l.dailyLimit, nil
}

// Breakdown returns today's spend grouped by model.
func (l *Ledger) Breakdown(ctx context.Context) (map[string]float64, error) {
	start, end := dayBounds(l.now())
	return l.store.CostBreakdownByModel(ctx, l.userID, start, end)
}

// dayBounds returns the UTC day interval [start, end) containing t.
func dayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
