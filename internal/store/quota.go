package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
)

func (s *Store) QuotaUsed(ctx context.Context, userID int, day time.Time) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(emails_sent, 0)
		FROM quota_usage
		WHERE user_id = $1 AND day = $2
	`, userID, day).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota used: %w", err)
	}
	return used, nil
}

// IncrementQuota consumes one send from the day's quota atomically. The
// conditional upsert only lands when the counter is still below the limit;
// zero rows means the quota is exhausted and nothing was consumed.
func (s *Store) IncrementQuota(ctx context.Context, userID int, day time.Time, limit int) (*domain.QuotaUsageEntry, error) {
	if limit <= 0 {
		return nil, domain.ErrQuotaExceeded
	}

	entry := &domain.QuotaUsageEntry{UserID: userID, Day: day, QuotaLimit: limit}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quota_usage (id, user_id, day, emails_sent, quota_limit, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, NOW(), NOW())
		ON CONFLICT (user_id, day) DO UPDATE
		SET emails_sent = quota_usage.emails_sent + 1, updated_at = NOW()
		WHERE quota_usage.emails_sent < $4
		RETURNING id, emails_sent
	`, uuid.New(), userID, day, limit).Scan(&entry.ID, &entry.EmailsSent)
	if err == sql.ErrNoRows {
		return nil, domain.ErrQuotaExceeded
	}
	if err != nil {
		return nil, fmt.Errorf("increment quota: %w", err)
	}
	return entry, nil
}
