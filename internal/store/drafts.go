package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
)

const draftColumns = `
	id, contact_id, user_id, to_email, from_email, subject, body,
	status, COALESCE(approved_by,''), approved_at, COALESCE(approval_notes,''),
	COALESCE(rejection_reason,''), COALESCE(cancel_reason,''), edited,
	COALESCE(message_id,''), COALESCE(thread_id,''), sent_at, scheduled_at,
	COALESCE(unsubscribe_token,''), COALESCE(unsubscribe_url,''),
	origin_draft_id, followup_sequence, batch_id,
	created_at, updated_at`

func scanDraft(row rowScanner) (*domain.EmailDraft, error) {
	d := &domain.EmailDraft{}
	err := row.Scan(
		&d.ID, &d.ContactID, &d.UserID, &d.ToEmail, &d.FromEmail, &d.Subject, &d.Body,
		&d.Status, &d.ApprovedBy, &d.ApprovedAt, &d.ApprovalNotes,
		&d.RejectionReason, &d.CancelReason, &d.Edited,
		&d.MessageID, &d.ThreadID, &d.SentAt, &d.ScheduledAt,
		&d.UnsubscribeToken, &d.UnsubscribeURL,
		&d.OriginDraftID, &d.FollowupSequence, &d.BatchID,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan draft: %w", err)
	}
	return d, nil
}

func (s *Store) CreateDraft(ctx context.Context, d *domain.EmailDraft) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_drafts
			(id, contact_id, user_id, to_email, from_email, subject, body,
			 status, edited, thread_id, unsubscribe_token, unsubscribe_url,
			 origin_draft_id, followup_sequence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, d.ID, d.ContactID, d.UserID, d.ToEmail, d.FromEmail, d.Subject, d.Body,
		d.Status, d.Edited, d.ThreadID, d.UnsubscribeToken, d.UnsubscribeURL,
		d.OriginDraftID, d.FollowupSequence, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	return nil
}

func (s *Store) DraftByID(ctx context.Context, id uuid.UUID) (*domain.EmailDraft, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM email_drafts WHERE id = $1`, id)
	return scanDraft(row)
}

// DraftByThreadID resolves the most recently sent draft in a thread; inbound
// replies are attributed to it.
func (s *Store) DraftByThreadID(ctx context.Context, threadID string) (*domain.EmailDraft, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+draftColumns+`
		FROM email_drafts
		WHERE thread_id = $1 AND status = $2
		ORDER BY sent_at DESC NULLS LAST
		LIMIT 1
	`, threadID, domain.DraftSent)
	return scanDraft(row)
}

// UpdateDraftStatus writes the draft's mutable fields, guarded on the status
// the caller read. Zero rows means a concurrent writer won; the caller gets
// ErrNotFound and must re-read.
func (s *Store) UpdateDraftStatus(ctx context.Context, d *domain.EmailDraft, expected domain.DraftStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_drafts
		SET subject = $1, body = $2, status = $3,
		    approved_by = $4, approved_at = $5, approval_notes = $6,
		    rejection_reason = $7, cancel_reason = $8, edited = $9,
		    message_id = $10, thread_id = $11, sent_at = $12, scheduled_at = $13,
		    batch_id = $14, updated_at = NOW()
		WHERE id = $15 AND status = $16
	`, d.Subject, d.Body, d.Status,
		d.ApprovedBy, d.ApprovedAt, d.ApprovalNotes,
		d.RejectionReason, d.CancelReason, d.Edited,
		d.MessageID, d.ThreadID, d.SentAt, d.ScheduledAt,
		d.BatchID, d.ID, expected)
	if err != nil {
		return fmt.Errorf("update draft status: %w", err)
	}
	return requireRow(res)
}

func (s *Store) ListPendingDrafts(ctx context.Context, userID int) ([]*domain.EmailDraft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+draftColumns+`
		FROM email_drafts
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at
	`, userID, domain.DraftPendingApproval)
	if err != nil {
		return nil, fmt.Errorf("list pending drafts: %w", err)
	}
	return collectDrafts(rows)
}

func (s *Store) ListDueScheduledDrafts(ctx context.Context, userID int, now time.Time) ([]*domain.EmailDraft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+draftColumns+`
		FROM email_drafts
		WHERE user_id = $1 AND status = $2 AND scheduled_at <= $3
		ORDER BY scheduled_at
	`, userID, domain.DraftScheduled, now)
	if err != nil {
		return nil, fmt.Errorf("list due scheduled drafts: %w", err)
	}
	return collectDrafts(rows)
}

func (s *Store) ListFollowupCandidates(ctx context.Context, userID int, cutoff time.Time, maxSeq int) ([]*domain.EmailDraft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+draftColumns+`
		FROM email_drafts
		WHERE user_id = $1 AND status = $2 AND sent_at <= $3 AND followup_sequence < $4
		ORDER BY sent_at
	`, userID, domain.DraftSent, cutoff, maxSeq)
	if err != nil {
		return nil, fmt.Errorf("list follow-up candidates: %w", err)
	}
	return collectDrafts(rows)
}

// chainQuery walks up to the chain root and back down over origin_draft_id.
const chainQuery = `
	WITH RECURSIVE up AS (
		SELECT id, origin_draft_id FROM email_drafts WHERE id = $1
		UNION ALL
		SELECT d.id, d.origin_draft_id
		FROM email_drafts d JOIN up ON up.origin_draft_id = d.id
	), down AS (
		SELECT id FROM up WHERE origin_draft_id IS NULL
		UNION ALL
		SELECT d.id FROM email_drafts d JOIN down ON d.origin_draft_id = down.id
	)
	SELECT ` + draftColumns + `
	FROM email_drafts
	WHERE id IN (SELECT id FROM down)
	ORDER BY followup_sequence`

func (s *Store) ChainDrafts(ctx context.Context, draftID uuid.UUID) ([]*domain.EmailDraft, error) {
	rows, err := s.db.QueryContext(ctx, chainQuery, draftID)
	if err != nil {
		return nil, fmt.Errorf("list chain drafts: %w", err)
	}
	return collectDrafts(rows)
}

func (s *Store) ChainUnresolvedDrafts(ctx context.Context, draftID uuid.UUID) ([]*domain.EmailDraft, error) {
	all, err := s.ChainDrafts(ctx, draftID)
	if err != nil {
		return nil, err
	}
	var out []*domain.EmailDraft
	for _, d := range all {
		if d.Unresolved() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) HasDeclineInChain(ctx context.Context, draftID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		WITH RECURSIVE up AS (
			SELECT id, origin_draft_id FROM email_drafts WHERE id = $1
			UNION ALL
			SELECT d.id, d.origin_draft_id
			FROM email_drafts d JOIN up ON up.origin_draft_id = d.id
		), down AS (
			SELECT id FROM up WHERE origin_draft_id IS NULL
			UNION ALL
			SELECT d.id FROM email_drafts d JOIN down ON d.origin_draft_id = down.id
		)
		SELECT EXISTS (
			SELECT 1 FROM replies r
			WHERE r.draft_id IN (SELECT id FROM down) AND r.intent = $2
		)
	`, draftID, domain.IntentDecline).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check chain declines: %w", err)
	}
	return exists, nil
}

func (s *Store) ListDraftsByUser(ctx context.Context, userID int) ([]*domain.EmailDraft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+draftColumns+`
		FROM email_drafts
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list drafts by user: %w", err)
	}
	return collectDrafts(rows)
}

func (s *Store) ListDraftsByContact(ctx context.Context, contactID uuid.UUID) ([]*domain.EmailDraft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+draftColumns+`
		FROM email_drafts
		WHERE contact_id = $1
		ORDER BY created_at
	`, contactID)
	if err != nil {
		return nil, fmt.Errorf("list drafts by contact: %w", err)
	}
	return collectDrafts(rows)
}

func (s *Store) ScrubDraft(ctx context.Context, d *domain.EmailDraft) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_drafts
		SET to_email = $1, subject = '', body = '', updated_at = NOW()
		WHERE id = $2
	`, d.ToEmail, d.ID)
	if err != nil {
		return fmt.Errorf("scrub draft: %w", err)
	}
	return requireRow(res)
}

func collectDrafts(rows *sql.Rows) ([]*domain.EmailDraft, error) {
	defer rows.Close()
	var out []*domain.EmailDraft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
