package replies

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/lifecycle"
)

var now = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type memoryStore struct {
	drafts   map[uuid.UUID]*domain.EmailDraft
	contacts map[uuid.UUID]*domain.Contact
	replies  map[uuid.UUID]*domain.Reply
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		drafts:   make(map[uuid.UUID]*domain.EmailDraft),
		contacts: make(map[uuid.UUID]*domain.Contact),
		replies:  make(map[uuid.UUID]*domain.Reply),
	}
}

func (m *memoryStore) DraftByThreadID(_ context.Context, threadID string) (*domain.EmailDraft, error) {
	for _, d := range m.drafts {
		if d.ThreadID == threadID {
			return d, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memoryStore) DraftByID(_ context.Context, id uuid.UUID) (*domain.EmailDraft, error) {
	d, ok := m.drafts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (m *memoryStore) SaveReply(_ context.Context, r *domain.Reply) error {
	m.replies[r.ID] = r
	return nil
}

func (m *memoryStore) UpdateReply(_ context.Context, r *domain.Reply) error {
	m.replies[r.ID] = r
	return nil
}

func (m *memoryStore) ContactByID(_ context.Context, id uuid.UUID) (*domain.Contact, error) {
	c, ok := m.contacts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (m *memoryStore) UpdateContactStatus(_ context.Context, id uuid.UUID, from, to domain.ContactStatus) error {
	c, ok := m.contacts[id]
	if !ok || c.Status != from {
		return domain.ErrNotFound
	}
	c.Status = to
	return nil
}

func (m *memoryStore) SetContactUnsubscribed(_ context.Context, id uuid.UUID, from domain.ContactStatus, at time.Time) error {
	c, ok := m.contacts[id]
	if !ok || c.Status != from {
		return domain.ErrNotFound
	}
	c.Status = domain.ContactUnsubscribed
	c.Unsubscribed = true
	c.UnsubscribedAt = &at
	return nil
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

func (m *memoryStore) ChainUnresolvedDrafts(_ context.Context, draftID uuid.UUID) ([]*domain.EmailDraft, error) {
	root := m.chainRoot(draftID)
	var out []*domain.EmailDraft
	for _, d := range m.drafts {
		if m.chainRoot(d.ID) == root && d.Unresolved() {
			clone := *d
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memoryStore) UpdateDraftStatus(_ context.Context, d *domain.EmailDraft, expected domain.DraftStatus) error {
	current, ok := m.drafts[d.ID]
	if !ok || current.Status != expected {
		return domain.ErrNotFound
	}
	clone := *d
	m.drafts[d.ID] = &clone
	return nil
}

type memorySink struct {
	entries []*domain.AuditLogEntry
}

func (m *memorySink) AppendAudit(_ context.Context, e *domain.AuditLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type stubClassifier struct {
	intent     domain.ReplyIntent
	confidence float64
	err        error
}

func (s *stubClassifier) ClassifyReply(context.Context, string) (domain.ReplyIntent, float64, int, error) {
	if s.err != nil {
		return domain.IntentUnknown, 0, 0, s.err
	}
	return s.intent, s.confidence, 50, nil
}

func newTestRouter(classifier Classifier) (*Router, *memoryStore, *memorySink) {
	store := newMemoryStore()
	sink := &memorySink{}
	router := NewRouter(store, classifier, nil, lifecycle.NewRecorder(sink), "gpt-4-turbo-preview")
	router.SetClock(func() time.Time { return now })
	return router, store, sink
}

func (m *memoryStore) seedSent() (*domain.EmailDraft, *domain.Contact) {
	contact := &domain.Contact{
		ID:     uuid.New(),
		Email:  "jane@example.com",
		Status: domain.ContactEmailSent,
	}
	m.contacts[contact.ID] = contact

	draft := &domain.EmailDraft{
		ID:        uuid.New(),
		ContactID: contact.ID,
		UserID:    1,
		ToEmail:   contact.Email,
		FromEmail: "sender@outreach.example.com",
		Status:    domain.DraftSent,
		ThreadID:  "thread_abc",
	}
	m.drafts[draft.ID] = draft
	return draft, contact
}

func TestReceiveRoutesByThreadID(t *testing.T) {
	router, store, _ := newTestRouter(nil)
	draft, _ := store.seedSent()

	reply, err := router.Receive(context.Background(), Inbound{
		ThreadID:  "thread_abc",
		FromEmail: "Jane@Example.com",
		Body:      "<p>Sounds <b>interesting</b>!</p>",
	})
	require.NoError(t, err)
	require.NotNil(t, reply)

	assert.Equal(t, draft.ID, reply.DraftID)
	assert.Equal(t, "jane@example.com", reply.FromEmail)
	assert.Equal(t, "Sounds interesting !", reply.Body, "HTML is stripped on receipt")
	assert.Equal(t, domain.IntentUnknown, reply.Intent)
	assert.Contains(t, store.replies, reply.ID)
}

func TestReceiveUnknownThread(t *testing.T) {
	router, _, _ := newTestRouter(nil)

	_, err := router.Receive(context.Background(), Inbound{ThreadID: "thread_nope", FromEmail: "x@example.com"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestReceiveDiscardsSelfReply(t *testing.T) {
	router, store, _ := newTestRouter(nil)
	store.seedSent()

	reply, err := router.Receive(context.Background(), Inbound{
		ThreadID:  "thread_abc",
		FromEmail: "SENDER@outreach.example.com",
		Body:      "echo of our own message",
	})
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.Empty(t, store.replies)
}

func TestProcessInterestedMarksContactReplied(t *testing.T) {
	router, store, sink := newTestRouter(&stubClassifier{intent: domain.IntentInterested, confidence: 0.9})
	_, contact := store.seedSent()

	reply, err := router.Receive(context.Background(), Inbound{
		ThreadID:  "thread_abc",
		FromEmail: "jane@example.com",
		Body:      "Sounds great. I am available Tuesday morning. Looking forward to it.",
	})
	require.NoError(t, err)

	processed, err := router.Process(context.Background(), reply)
	require.NoError(t, err)

	assert.Equal(t, domain.IntentInterested, processed.Intent)
	assert.Equal(t, 0.9, processed.Confidence)
	require.NotNil(t, processed.ProcessedAt)
	assert.Contains(t, processed.AvailabilityText, "available Tuesday morning")

	assert.Equal(t, domain.ContactReplied, store.contacts[contact.ID].Status)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, "reply_interested", sink.entries[0].Action)
}

func TestProcessDeclineCancelsOpenFollowups(t *testing.T) {
	router, store, sink := newTestRouter(&stubClassifier{intent: domain.IntentDecline, confidence: 0.8})
	origin, contact := store.seedSent()

	pending := &domain.EmailDraft{
		ID:               uuid.New(),
		ContactID:        contact.ID,
		UserID:           1,
		Status:           domain.DraftPendingApproval,
		OriginDraftID:    &origin.ID,
		FollowupSequence: 1,
	}
	store.drafts[pending.ID] = pending

	approved := &domain.EmailDraft{
		ID:               uuid.New(),
		ContactID:        contact.ID,
		UserID:           1,
		Status:           domain.DraftApproved,
		OriginDraftID:    &origin.ID,
		FollowupSequence: 2,
	}
	store.drafts[approved.ID] = approved

	reply, err := router.Receive(context.Background(), Inbound{
		ThreadID:  "thread_abc",
		FromEmail: "jane@example.com",
		Body:      "Thanks, but we are not interested.",
	})
	require.NoError(t, err)

	_, err = router.Process(context.Background(), reply)
	require.NoError(t, err)

	assert.Equal(t, domain.DraftRejected, store.drafts[pending.ID].Status)
	assert.Equal(t, domain.DraftRejected, store.drafts[approved.ID].Status)
	assert.Equal(t, "recipient declined", store.drafts[pending.ID].RejectionReason)
	assert.Equal(t, domain.ContactEmailSent, store.contacts[contact.ID].Status, "decline does not unsubscribe")
	assert.NotEmpty(t, sink.entries)
}

func TestProcessUnsubscribeTransitionsContact(t *testing.T) {
	router, store, _ := newTestRouter(&stubClassifier{intent: domain.IntentUnsubscribe, confidence: 0.95})
	origin, contact := store.seedSent()

	pending := &domain.EmailDraft{
		ID:            uuid.New(),
		ContactID:     contact.ID,
		UserID:        1,
		Status:        domain.DraftPendingApproval,
		OriginDraftID: &origin.ID,
	}
	store.drafts[pending.ID] = pending

	reply, err := router.Receive(context.Background(), Inbound{
		ThreadID:  "thread_abc",
		FromEmail: "jane@example.com",
		Body:      "Please remove me from your list.",
	})
	require.NoError(t, err)

	_, err = router.Process(context.Background(), reply)
	require.NoError(t, err)

	c := store.contacts[contact.ID]
	assert.Equal(t, domain.ContactUnsubscribed, c.Status)
	assert.True(t, c.Unsubscribed)
	assert.Equal(t, domain.DraftRejected, store.drafts[pending.ID].Status)
}

func TestProcessClassifierFailureKeepsUnknown(t *testing.T) {
	router, store, _ := newTestRouter(&stubClassifier{err: errors.New("model timeout")})
	_, contact := store.seedSent()

	reply, err := router.Receive(context.Background(), Inbound{
		ThreadID:  "thread_abc",
		FromEmail: "jane@example.com",
		Body:      "ambiguous text",
	})
	require.NoError(t, err)

	processed, err := router.Process(context.Background(), reply)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentUnknown, processed.Intent)
	assert.Equal(t, domain.ContactEmailSent, store.contacts[contact.ID].Status)
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "hello world", "hello world"},
		{"tags become spaces", "<p>hello</p><p>world</p>", "hello world"},
		{"script dropped", "<script>alert(1)</script>hi", "hi"},
		{"style dropped", "<style>p{color:red}</style>hi", "hi"},
		{"whitespace collapsed", "a \n\n  b", "a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripHTML(tt.in))
		})
	}
}

func TestExtractAvailability(t *testing.T) {
	got := ExtractAvailability("Sure. I am free Tuesday afternoon. Also Thursday morning works. Anything else.")
	assert.Equal(t, "I am free Tuesday afternoon. Also Thursday morning works", got)

	assert.Empty(t, ExtractAvailability("No thanks, not relevant to us."))
}
