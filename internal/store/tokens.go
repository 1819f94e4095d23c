package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
)

func (s *Store) SaveUnsubscribeToken(ctx context.Context, t *domain.UnsubscribeToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO unsubscribe_tokens (id, contact_id, token, used, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.ContactID, t.Token, t.Used, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("save unsubscribe token: %w", err)
	}
	return nil
}

func (s *Store) UnsubscribeTokenByValue(ctx context.Context, token string) (*domain.UnsubscribeToken, error) {
	t := &domain.UnsubscribeToken{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, contact_id, token, used, used_at, created_at
		FROM unsubscribe_tokens
		WHERE token = $1
	`, token).Scan(&t.ID, &t.ContactID, &t.Token, &t.Used, &t.UsedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup unsubscribe token: %w", err)
	}
	return t, nil
}

func (s *Store) MarkTokenUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE unsubscribe_tokens SET used = true, used_at = $1 WHERE id = $2
	`, usedAt, id)
	if err != nil {
		return fmt.Errorf("mark token used: %w", err)
	}
	return requireRow(res)
}
