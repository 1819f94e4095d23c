package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

func (s *Store) AppendCostLog(ctx context.Context, e *domain.CostLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_log
			(id, user_id, operation, model, tokens_used, cost, contact_id, draft_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.UserID, e.Operation, e.Model, e.TokensUsed, e.Cost,
		e.ContactID, e.DraftID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append cost log: %w", err)
	}
	return nil
}

func (s *Store) SumCosts(ctx context.Context, userID int, from, to time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost), 0)
		FROM cost_log
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
	`, userID, from, to).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum costs: %w", err)
	}
	return total, nil
}

func (s *Store) CostBreakdownByModel(ctx context.Context, userID int, from, to time.Time) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model, SUM(cost)
		FROM cost_log
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY model
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("cost breakdown: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var model string
		var cost float64
		if err := rows.Scan(&model, &cost); err != nil {
			return nil, fmt.Errorf("scan cost breakdown: %w", err)
		}
		out[model] = cost
	}
	return out, rows.Err()
}
