package followup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/compliance"
	"github.com/ignite/outreach-engine/internal/domain"
)

var now = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type memoryStore struct {
	drafts   map[uuid.UUID]*domain.EmailDraft
	contacts map[uuid.UUID]*domain.Contact
	replies  map[uuid.UUID][]*domain.Reply
	tokens   map[string]*domain.UnsubscribeToken
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		drafts:   make(map[uuid.UUID]*domain.EmailDraft),
		contacts: make(map[uuid.UUID]*domain.Contact),
		replies:  make(map[uuid.UUID][]*domain.Reply),
		tokens:   make(map[string]*domain.UnsubscribeToken),
	}
}

func (m *memoryStore) ListFollowupCandidates(_ context.Context, userID int, cutoff time.Time, maxSeq int) ([]*domain.EmailDraft, error) {
	var out []*domain.EmailDraft
	for _, d := range m.drafts {
		if d.UserID == userID && d.Status == domain.DraftSent && d.SentAt != nil &&
			!d.SentAt.After(cutoff) && d.FollowupSequence < maxSeq {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memoryStore) HasReply(_ context.Context, draftID uuid.UUID) (bool, error) {
	return len(m.replies[draftID]) > 0, nil
}

func (m *memoryStore) chainRoot(draftID uuid.UUID) uuid.UUID {
	d := m.drafts[draftID]
	for d != nil && d.OriginDraftID != nil {
		d = m.drafts[*d.OriginDraftID]
	}
	if d == nil {
		return draftID
	}
	return d.ID
}

func (m *memoryStore) chain(draftID uuid.UUID) []*domain.EmailDraft {
	root := m.chainRoot(draftID)
	var out []*domain.EmailDraft
	for _, d := range m.drafts {
		if m.chainRoot(d.ID) == root {
			out = append(out, d)
		}
	}
	return out
}

func (m *memoryStore) ChainDrafts(_ context.Context, draftID uuid.UUID) ([]*domain.EmailDraft, error) {
	return m.chain(draftID), nil
}

func (m *memoryStore) HasDeclineInChain(_ context.Context, draftID uuid.UUID) (bool, error) {
	for _, d := range m.chain(draftID) {
		for _, r := range m.replies[d.ID] {
			if r.Intent == domain.IntentDecline {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memoryStore) ContactByID(_ context.Context, id uuid.UUID) (*domain.Contact, error) {
	c, ok := m.contacts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (m *memoryStore) CreateDraft(_ context.Context, d *domain.EmailDraft) error {
	m.drafts[d.ID] = d
	return nil
}

func (m *memoryStore) SaveUnsubscribeToken(_ context.Context, t *domain.UnsubscribeToken) error {
	m.tokens[t.Token] = t
	return nil
}

func (m *memoryStore) UnsubscribeTokenByValue(_ context.Context, value string) (*domain.UnsubscribeToken, error) {
	t, ok := m.tokens[value]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (m *memoryStore) MarkTokenUsed(context.Context, uuid.UUID, time.Time) error { return nil }

func (m *memoryStore) SetContactUnsubscribed(context.Context, uuid.UUID, domain.ContactStatus, time.Time) error {
	return nil
}

func newTestScheduler() (*Scheduler, *memoryStore) {
	store := newMemoryStore()
	gate := compliance.NewGate(store, nil, "https://outreach.example.com/unsubscribe")
	sched := NewScheduler(store, gate, "sender@outreach.example.com", "Sam", 1, 7, 3)
	sched.SetClock(func() time.Time { return now })
	return sched, store
}

func (m *memoryStore) seedSent(daysAgo int, seq int) (*domain.EmailDraft, *domain.Contact) {
	contact := &domain.Contact{
		ID:      uuid.New(),
		Email:   "jane@example.com",
		Name:    "Jane",
		Company: "Acme",
		Status:  domain.ContactEmailSent,
	}
	m.contacts[contact.ID] = contact

	sentAt := now.AddDate(0, 0, -daysAgo)
	draft := &domain.EmailDraft{
		ID:               uuid.New(),
		ContactID:        contact.ID,
		UserID:           1,
		ToEmail:          contact.Email,
		FromEmail:        "sender@outreach.example.com",
		Subject:          "Scaling at Acme",
		Body:             "Hi Jane, original pitch.",
		Status:           domain.DraftSent,
		ThreadID:         "thread_abc",
		SentAt:           &sentAt,
		FollowupSequence: seq,
	}
	m.drafts[draft.ID] = draft
	return draft, contact
}

func TestRunGeneratesFollowupForSilentContact(t *testing.T) {
	sched, store := newTestScheduler()
	origin, contact := store.seedSent(8, 0)

	created, err := sched.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, created, 1)

	fu := created[0]
	assert.Equal(t, domain.DraftPendingApproval, fu.Status)
	assert.Equal(t, contact.ID, fu.ContactID)
	require.NotNil(t, fu.OriginDraftID)
	assert.Equal(t, origin.ID, *fu.OriginDraftID)
	assert.Equal(t, 1, fu.FollowupSequence)
	assert.Equal(t, "Re: Scaling at Acme", fu.Subject)
	assert.Equal(t, "thread_abc", fu.ThreadID)
	assert.Contains(t, fu.Body, "follow up on my previous email")
	assert.Contains(t, fu.Body, "Original message:\nHi Jane, original pitch.")
	assert.Contains(t, fu.Body, "To unsubscribe")
}

func TestCreateFollowupRendersBodyAndIssuesToken(t *testing.T) {
	sched, store := newTestScheduler()
	origin, contact := store.seedSent(8, 0)

	fu, err := sched.CreateFollowup(context.Background(), origin, contact)
	require.NoError(t, err)

	assert.Contains(t, fu.Body, "follow up on my previous email")
	require.NotEmpty(t, fu.UnsubscribeToken)
	_, ok := store.tokens[fu.UnsubscribeToken]
	assert.True(t, ok, "issued token must be persisted")
	assert.Contains(t, fu.Body, fu.UnsubscribeURL)
}

func TestRunSkipsRecentSends(t *testing.T) {
	sched, store := newTestScheduler()
	store.seedSent(3, 0)

	created, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestRunSkipsRepliedDrafts(t *testing.T) {
	sched, store := newTestScheduler()
	origin, _ := store.seedSent(8, 0)
	store.replies[origin.ID] = []*domain.Reply{{ID: uuid.New(), Intent: domain.IntentInterested}}

	created, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestRunSkipsDoNotFollowup(t *testing.T) {
	sched, store := newTestScheduler()
	_, contact := store.seedSent(8, 0)
	contact.DoNotFollowup = true

	created, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestRunSkipsUnsubscribedContact(t *testing.T) {
	sched, store := newTestScheduler()
	_, contact := store.seedSent(8, 0)
	contact.Unsubscribed = true

	created, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestRunRespectsSequenceCap(t *testing.T) {
	sched, store := newTestScheduler()
	store.seedSent(8, 3)

	created, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestRunSkipsChainWithUnresolvedFollowup(t *testing.T) {
	sched, store := newTestScheduler()
	origin, contact := store.seedSent(8, 0)

	pending := &domain.EmailDraft{
		ID:               uuid.New(),
		ContactID:        contact.ID,
		UserID:           1,
		Status:           domain.DraftPendingApproval,
		OriginDraftID:    &origin.ID,
		FollowupSequence: 1,
	}
	store.drafts[pending.ID] = pending

	created, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestRunDeclineSuppressesWholeChain(t *testing.T) {
	sched, store := newTestScheduler()
	origin, contact := store.seedSent(16, 0)

	// A sent follow-up whose reply was a decline.
	sentAt := now.AddDate(0, 0, -8)
	fu := &domain.EmailDraft{
		ID:               uuid.New(),
		ContactID:        contact.ID,
		UserID:           1,
		Subject:          "Re: Scaling at Acme",
		Status:           domain.DraftSent,
		ThreadID:         origin.ThreadID,
		SentAt:           &sentAt,
		OriginDraftID:    &origin.ID,
		FollowupSequence: 1,
	}
	store.drafts[fu.ID] = fu
	store.replies[fu.ID] = []*domain.Reply{{ID: uuid.New(), Intent: domain.IntentDecline}}

	created, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created, "a decline anywhere in the chain suppresses it permanently")
}

func TestSecondFollowupUsesBriefTemplate(t *testing.T) {
	sched, store := newTestScheduler()
	origin, contact := store.seedSent(8, 1)
	origin.Subject = "Re: Scaling at Acme"

	fu, err := sched.CreateFollowup(context.Background(), origin, contact)
	require.NoError(t, err)

	assert.Equal(t, 2, fu.FollowupSequence)
	assert.Equal(t, "Re: Scaling at Acme", fu.Subject, "no double Re: prefix")
	assert.Contains(t, fu.Body, "I'll keep this brief")
	assert.Contains(t, fu.Body, "benefit Acme")
	assert.NotContains(t, fu.Body, "Original message:")
}
