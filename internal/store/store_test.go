package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func contactRow(c *domain.Contact) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "email", "name", "industry",
		"title", "company", "painpoint", "relevance_score",
		"status", "error_message", "retry_count",
		"timezone", "unsubscribed", "unsubscribed_at", "do_not_followup",
		"deleted", "deleted_at", "embedding", "cluster_label",
		"created_at", "updated_at",
	}).AddRow(
		c.ID, c.UserID, c.Email, c.Name, c.Industry,
		c.Title, c.Company, c.Painpoint, c.RelevanceScore,
		c.Status, c.ErrorMessage, c.RetryCount,
		c.Timezone, c.Unsubscribed, c.UnsubscribedAt, c.DoNotFollowup,
		c.Deleted, c.DeletedAt, c.Embedding, c.ClusterLabel,
		c.CreatedAt, c.UpdatedAt,
	)
}

func TestContactByEmail(t *testing.T) {
	s, mock := newMock(t)

	want := &domain.Contact{
		ID:        uuid.New(),
		UserID:    1,
		Email:     "jane@example.com",
		Name:      "Jane",
		Industry:  "SaaS",
		Status:    domain.ContactEnriched,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	mock.ExpectQuery(`SELECT (.+) FROM contacts WHERE email = \$1 AND deleted = false`).
		WithArgs("jane@example.com").
		WillReturnRows(contactRow(want))

	got, err := s.ContactByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, domain.ContactEnriched, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContactByEmailNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM contacts WHERE email = \$1`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.ContactByEmail(context.Background(), "nobody@example.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDraftStatusGuardRejectsStaleWriter(t *testing.T) {
	s, mock := newMock(t)

	d := &domain.EmailDraft{ID: uuid.New(), Status: domain.DraftApproved}
	mock.ExpectExec(`UPDATE email_drafts`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateDraftStatus(context.Background(), d, domain.DraftPendingApproval)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "a zero-row guarded update signals a lost race")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDraftStatusGuardAccepts(t *testing.T) {
	s, mock := newMock(t)

	d := &domain.EmailDraft{ID: uuid.New(), Status: domain.DraftApproved}
	mock.ExpectExec(`UPDATE email_drafts`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UpdateDraftStatus(context.Background(), d, domain.DraftPendingApproval))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementQuotaConsumes(t *testing.T) {
	s, mock := newMock(t)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	id := uuid.New()
	mock.ExpectQuery(`INSERT INTO quota_usage`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "emails_sent"}).AddRow(id, 42))

	entry, err := s.IncrementQuota(context.Background(), 1, day, 500)
	require.NoError(t, err)
	assert.Equal(t, 42, entry.EmailsSent)
	assert.Equal(t, 500, entry.QuotaLimit)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementQuotaExhausted(t *testing.T) {
	s, mock := newMock(t)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// The conditional upsert lands no row once the counter is at the limit.
	mock.ExpectQuery(`INSERT INTO quota_usage`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "emails_sent"}))

	_, err := s.IncrementQuota(context.Background(), 1, day, 500)
	assert.True(t, errors.Is(err, domain.ErrQuotaExceeded))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementQuotaZeroLimit(t *testing.T) {
	s, _ := newMock(t)

	_, err := s.IncrementQuota(context.Background(), 1, time.Now(), 0)
	assert.True(t, errors.Is(err, domain.ErrQuotaExceeded))
}

func TestMergeContactsCommitsAsOneTransaction(t *testing.T) {
	s, mock := newMock(t)
	unsubAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	primary := &domain.Contact{
		ID:             uuid.New(),
		Name:           "Jane",
		Industry:       "SaaS",
		Embedding:      []byte{1, 2, 3, 4},
		ClusterLabel:   "cluster_2",
		Unsubscribed:   true,
		UnsubscribedAt: &unsubAt,
	}
	dupID := uuid.New()

	mock.ExpectBegin()
	// The merged embedding, cluster label and unsubscribe timestamp must all
	// reach the primary row.
	mock.ExpectExec(`UPDATE contacts`).
		WithArgs(primary.Name, primary.Industry, primary.Title, primary.Company,
			primary.Painpoint, primary.RelevanceScore, primary.Timezone,
			primary.Embedding, primary.ClusterLabel, primary.Unsubscribed,
			unsubAt, primary.DoNotFollowup, primary.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE email_drafts SET contact_id`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE contacts`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.MergeContacts(context.Background(), primary, dupID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeContactsRollsBackWhenDuplicateAlreadyDeleted(t *testing.T) {
	s, mock := newMock(t)
	primary := &domain.Contact{ID: uuid.New()}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE contacts`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE email_drafts SET contact_id`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE contacts`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.MergeContacts(context.Background(), primary, uuid.New())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSumCosts(t *testing.T) {
	s, mock := newMock(t)
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(cost\), 0\)`).
		WithArgs(1, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(12.34))

	total, err := s.SumCosts(context.Background(), 1, from, to)
	require.NoError(t, err)
	assert.Equal(t, 12.34, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHasReply(t *testing.T) {
	s, mock := newMock(t)
	draftID := uuid.New()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(draftID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	has, err := s.HasReply(context.Background(), draftID)
	require.NoError(t, err)
	assert.True(t, has)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuotaUsedMissingDayIsZero(t *testing.T) {
	s, mock := newMock(t)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COALESCE\(emails_sent, 0\)`).
		WithArgs(1, day).
		WillReturnRows(sqlmock.NewRows([]string{"emails_sent"}))

	used, err := s.QuotaUsed(context.Background(), 1, day)
	require.NoError(t, err)
	assert.Zero(t, used)
	require.NoError(t, mock.ExpectationsWereMet())
}
