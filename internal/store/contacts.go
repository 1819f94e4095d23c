package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
)

const contactColumns = `
	id, user_id, email, name, industry,
	COALESCE(title,''), COALESCE(company,''), COALESCE(painpoint,''), relevance_score,
	status, COALESCE(error_message,''), retry_count,
	COALESCE(timezone,''), unsubscribed, unsubscribed_at, do_not_followup,
	deleted, deleted_at, embedding, COALESCE(cluster_label,''),
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(row rowScanner) (*domain.Contact, error) {
	c := &domain.Contact{}
	err := row.Scan(
		&c.ID, &c.UserID, &c.Email, &c.Name, &c.Industry,
		&c.Title, &c.Company, &c.Painpoint, &c.RelevanceScore,
		&c.Status, &c.ErrorMessage, &c.RetryCount,
		&c.Timezone, &c.Unsubscribed, &c.UnsubscribedAt, &c.DoNotFollowup,
		&c.Deleted, &c.DeletedAt, &c.Embedding, &c.ClusterLabel,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan contact: %w", err)
	}
	return c, nil
}

func (s *Store) CreateContact(ctx context.Context, c *domain.Contact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts
			(id, user_id, email, name, industry, title, company, painpoint,
			 relevance_score, status, error_message, retry_count, timezone,
			 unsubscribed, do_not_followup, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, c.ID, c.UserID, c.Email, c.Name, c.Industry, c.Title, c.Company, c.Painpoint,
		c.RelevanceScore, c.Status, c.ErrorMessage, c.RetryCount, c.Timezone,
		c.Unsubscribed, c.DoNotFollowup, c.Deleted, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}

func (s *Store) ContactByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	return scanContact(row)
}

// ContactByEmail resolves a normalized email within the non-deleted set. A
// soft-deleted contact does not hold the address.
func (s *Store) ContactByEmail(ctx context.Context, email string) (*domain.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE email = $1 AND deleted = false`, email)
	return scanContact(row)
}

// UpdateContactStatus moves a contact between statuses, guarded on the status
// the caller read. Zero rows means the row moved on concurrently.
func (s *Store) UpdateContactStatus(ctx context.Context, id uuid.UUID, from, to domain.ContactStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contacts SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return fmt.Errorf("update contact status: %w", err)
	}
	return requireRow(res)
}

func (s *Store) SetContactUnsubscribed(ctx context.Context, id uuid.UUID, from domain.ContactStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET status = $1, unsubscribed = true, unsubscribed_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, domain.ContactUnsubscribed, at, id, from)
	if err != nil {
		return fmt.Errorf("set contact unsubscribed: %w", err)
	}
	return requireRow(res)
}

func (s *Store) UpdateContactEnrichment(ctx context.Context, c *domain.Contact, expected domain.ContactStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET title = $1, company = $2, painpoint = $3, relevance_score = $4,
		    status = $5, error_message = $6, retry_count = $7, updated_at = $8
		WHERE id = $9 AND status = $10
	`, c.Title, c.Company, c.Painpoint, c.RelevanceScore,
		c.Status, c.ErrorMessage, c.RetryCount, c.UpdatedAt, c.ID, expected)
	if err != nil {
		return fmt.Errorf("update contact enrichment: %w", err)
	}
	return requireRow(res)
}

func (s *Store) ListContactsByStatus(ctx context.Context, userID int, status domain.ContactStatus, limit int) ([]*domain.Contact, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE user_id = $1 AND status = $2 AND deleted = false
		ORDER BY created_at
		LIMIT $3
	`, userID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list contacts by status: %w", err)
	}
	return collectContacts(rows)
}

func (s *Store) ListClusterCandidates(ctx context.Context, userID int, limit int) ([]*domain.Contact, error) {
	return s.ListContactsByStatus(ctx, userID, domain.ContactEnriched, limit)
}

func (s *Store) ListContacts(ctx context.Context, userID int, includeDeleted bool) ([]*domain.Contact, error) {
	q := `SELECT ` + contactColumns + ` FROM contacts WHERE user_id = $1`
	if !includeDeleted {
		q += ` AND deleted = false`
	}
	q += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return collectContacts(rows)
}

func (s *Store) UpdateContactEmbedding(ctx context.Context, id uuid.UUID, embedding []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contacts SET embedding = $1, updated_at = NOW() WHERE id = $2
	`, embedding, id)
	if err != nil {
		return fmt.Errorf("update contact embedding: %w", err)
	}
	return requireRow(res)
}

func (s *Store) UpdateContactClusterLabel(ctx context.Context, id uuid.UUID, label string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contacts SET cluster_label = $1, updated_at = NOW() WHERE id = $2
	`, label, id)
	if err != nil {
		return fmt.Errorf("update contact cluster label: %w", err)
	}
	return requireRow(res)
}

// MergeContacts applies the merged field values to the primary, re-parents
// the duplicate's drafts, and soft-deletes the duplicate, all in one
// transaction.
func (s *Store) MergeContacts(ctx context.Context, primary *domain.Contact, duplicateID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE contacts
		SET name = $1, industry = $2, title = $3, company = $4, painpoint = $5,
		    relevance_score = $6, timezone = $7, embedding = $8, cluster_label = $9,
		    unsubscribed = $10, unsubscribed_at = $11, do_not_followup = $12,
		    updated_at = NOW()
		WHERE id = $13
	`, primary.Name, primary.Industry, primary.Title, primary.Company, primary.Painpoint,
		primary.RelevanceScore, primary.Timezone, primary.Embedding, primary.ClusterLabel,
		primary.Unsubscribed, primary.UnsubscribedAt, primary.DoNotFollowup, primary.ID)
	if err != nil {
		return fmt.Errorf("merge primary: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE email_drafts SET contact_id = $1 WHERE contact_id = $2
	`, primary.ID, duplicateID)
	if err != nil {
		return fmt.Errorf("re-parent drafts: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE contacts
		SET status = $1, deleted = true, deleted_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND deleted = false
	`, domain.ContactDeleted, duplicateID)
	if err != nil {
		return fmt.Errorf("soft-delete duplicate: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) SaveErasedContact(ctx context.Context, c *domain.Contact) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET email = $1, name = '', industry = '', title = '', company = '',
		    painpoint = '', timezone = '', error_message = '', embedding = NULL,
		    cluster_label = '', status = $2, deleted = true, deleted_at = $3,
		    updated_at = $4
		WHERE id = $5
	`, c.Email, c.Status, c.DeletedAt, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("erase contact: %w", err)
	}
	return requireRow(res)
}

func collectContacts(rows *sql.Rows) ([]*domain.Contact, error) {
	defer rows.Close()
	var out []*domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// requireRow maps a zero-row update to ErrNotFound. Status-guarded updates
// rely on this to reject stale writers.
func requireRow(res sql.Result) error {
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
