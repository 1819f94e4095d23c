package budget

import (
	"context"

	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// BatchResult reports a budget-gated batch run. Work completed before the
// stop is never discarded; the caller gets the partial result.
type BatchResult struct {
	Requested     int    `json:"requested"`
	Completed     int    `json:"completed"`
	Failed        int    `json:"failed"`
	Stopped       bool   `json:"stopped"`
	StoppedReason string `json:"stopped_reason,omitempty"`
	StoppedAt     int    `json:"stopped_at,omitempty"`
}

// RunBatch executes n units of work, checking the projected spend before
// each unit. The moment a unit's cost would push today's total over the
// daily limit the batch stops with StoppedReason set; already-completed
// units stand. Unit errors are counted but do not stop the batch.
func (l *Ledger) RunBatch(ctx context.Context, n int, unitCost func(i int) float64, unit func(ctx context.Context, i int) error) (BatchResult, error) {
	result := BatchResult{Requested: n}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		exceed, err := l.WouldExceed(ctx, unitCost(i))
		if err != nil {
			return result, err
		}
		if exceed {
			result.Stopped = true
			result.StoppedReason = StoppedReasonBudget
			result.StoppedAt = i
			logger.Warn("batch stopped on budget ceiling", "completed", result.Completed, "requested", n)
			return result, nil
		}

		if err := unit(ctx, i); err != nil {
			result.Failed++
			continue
		}
		result.Completed++
	}

	return result, nil
}
