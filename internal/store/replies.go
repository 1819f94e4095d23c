package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/outreach-engine/internal/domain"
)

const replyColumns = `
	id, draft_id, from_email, cc_recipients, body,
	intent, confidence, COALESCE(availability_text,''),
	received_at, processed_at`

func scanReply(row rowScanner) (*domain.Reply, error) {
	r := &domain.Reply{}
	err := row.Scan(
		&r.ID, &r.DraftID, &r.FromEmail, pq.Array(&r.CCRecipients), &r.Body,
		&r.Intent, &r.Confidence, &r.AvailabilityText,
		&r.ReceivedAt, &r.ProcessedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan reply: %w", err)
	}
	return r, nil
}

func (s *Store) SaveReply(ctx context.Context, r *domain.Reply) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replies
			(id, draft_id, from_email, cc_recipients, body, intent, confidence, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.DraftID, r.FromEmail, pq.Array(r.CCRecipients), r.Body,
		r.Intent, r.Confidence, r.ReceivedAt)
	if err != nil {
		return fmt.Errorf("save reply: %w", err)
	}
	return nil
}

func (s *Store) UpdateReply(ctx context.Context, r *domain.Reply) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE replies
		SET intent = $1, confidence = $2, availability_text = $3, processed_at = $4
		WHERE id = $5
	`, r.Intent, r.Confidence, r.AvailabilityText, r.ProcessedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update reply: %w", err)
	}
	return requireRow(res)
}

func (s *Store) RepliesByDraft(ctx context.Context, draftID uuid.UUID) ([]*domain.Reply, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+replyColumns+`
		FROM replies
		WHERE draft_id = $1
		ORDER BY received_at
	`, draftID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	var out []*domain.Reply
	for rows.Next() {
		r, err := scanReply(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) HasReply(ctx context.Context, draftID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM replies WHERE draft_id = $1)`, draftID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check replies: %w", err)
	}
	return exists, nil
}

func (s *Store) ScrubReply(ctx context.Context, r *domain.Reply) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE replies
		SET from_email = $1, cc_recipients = NULL, body = '', availability_text = ''
		WHERE id = $2
	`, r.FromEmail, r.ID)
	if err != nil {
		return fmt.Errorf("scrub reply: %w", err)
	}
	return requireRow(res)
}
