package drafting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/compliance"
	"github.com/ignite/outreach-engine/internal/domain"
)

type memoryStore struct {
	drafts []*domain.EmailDraft
	tokens map[string]*domain.UnsubscribeToken
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tokens: make(map[string]*domain.UnsubscribeToken)}
}

func (m *memoryStore) CreateDraft(_ context.Context, d *domain.EmailDraft) error {
	m.drafts = append(m.drafts, d)
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

func (m *memoryStore) ContactByID(context.Context, uuid.UUID) (*domain.Contact, error) {
	return nil, domain.ErrNotFound
}

func (m *memoryStore) SetContactUnsubscribed(context.Context, uuid.UUID, domain.ContactStatus, time.Time) error {
	return nil
}

type stubGenerator struct {
	subject string
	body    string
	tokens  int
	err     error
}

func (s *stubGenerator) GenerateDraft(context.Context, *domain.Contact, int) (string, string, int, error) {
	return s.subject, s.body, s.tokens, s.err
}

func newTestDrafter(gen Generator) (*Drafter, *memoryStore) {
	store := newMemoryStore()
	gate := compliance.NewGate(store, nil, "https://outreach.example.com/unsubscribe")
	return NewDrafter(store, gate, nil, gen, "sender@outreach.example.com", "gpt-4-turbo-preview", 1), store
}

func testContact() *domain.Contact {
	return &domain.Contact{
		ID:        uuid.New(),
		Email:     "jane@example.com",
		Name:      "Jane",
		Company:   "Acme",
		Industry:  "Technology",
		Title:     "VP Engineering",
		Painpoint: "slow deploys",
		Status:    domain.ContactEnriched,
	}
}

func TestCreateDraftFromTemplate(t *testing.T) {
	drafter, store := newTestDrafter(nil)

	draft, err := drafter.CreateDraft(context.Background(), testContact(), &Template{
		Subject: "Hi {{name}}, about {{company}}",
		Body:    "I saw {{company}} is tackling {{painpoint}}.",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hi Jane, about Acme", draft.Subject)
	assert.Contains(t, draft.Body, "I saw Acme is tackling slow deploys.")
	assert.Equal(t, domain.DraftPendingApproval, draft.Status)
	assert.Equal(t, "jane@example.com", draft.ToEmail)
	assert.Equal(t, "sender@outreach.example.com", draft.FromEmail)

	assert.Contains(t, draft.Body, "To unsubscribe, click: "+draft.UnsubscribeURL)
	assert.NotEmpty(t, draft.UnsubscribeToken)
	assert.Contains(t, store.tokens, draft.UnsubscribeToken)
	require.Len(t, store.drafts, 1)
}

func TestTemplateVarsFallbacks(t *testing.T) {
	vars := TemplateVars(&domain.Contact{Email: "x@example.com"})
	assert.Equal(t, "there", vars["name"])
	assert.Equal(t, "your organization", vars["company"])
	assert.Equal(t, "your industry", vars["industry"])
	assert.Equal(t, "industry challenges", vars["painpoint"])
	assert.Equal(t, "", vars["title"])
}

func TestCreateDraftBlockedForUnsubscribed(t *testing.T) {
	drafter, store := newTestDrafter(nil)

	contact := testContact()
	contact.Unsubscribed = true

	_, err := drafter.CreateDraft(context.Background(), contact, &Template{Subject: "s", Body: "b"})
	assert.True(t, errors.Is(err, domain.ErrContactUnsubscribed))
	assert.Empty(t, store.drafts)
}

func TestCreateDraftBlockedForDeleted(t *testing.T) {
	drafter, _ := newTestDrafter(nil)

	contact := testContact()
	contact.Deleted = true

	_, err := drafter.CreateDraft(context.Background(), contact, &Template{Subject: "s", Body: "b"})
	assert.True(t, errors.Is(err, domain.ErrContactDeleted))
}

func TestCreateDraftViaGenerator(t *testing.T) {
	gen := &stubGenerator{subject: "Scaling at Acme", body: "Hi Jane, quick thought.", tokens: 300}
	drafter, _ := newTestDrafter(gen)

	draft, err := drafter.CreateDraft(context.Background(), testContact(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Scaling at Acme", draft.Subject)
	assert.Contains(t, draft.Body, "Hi Jane, quick thought.")
}

func TestCreateDraftGeneratorFallbackSubject(t *testing.T) {
	gen := &stubGenerator{subject: "", body: "body text"}
	drafter, _ := newTestDrafter(gen)

	draft, err := drafter.CreateDraft(context.Background(), testContact(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Quick question about Acme", draft.Subject)
}

func TestCreateDraftsBulkContinuesOnFailure(t *testing.T) {
	drafter, store := newTestDrafter(nil)

	good := testContact()
	bad := testContact()
	bad.Unsubscribed = true

	result, err := drafter.CreateDraftsBulk(context.Background(), []*domain.Contact{good, bad}, &Template{Subject: "s", Body: "b"})
	require.NoError(t, err)
	assert.Len(t, result.Drafts, 1)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, store.drafts, 1)
}

func TestStripFooter(t *testing.T) {
	body := "Hello.\n\n---\nTo unsubscribe, click: https://x/unsub_a_b"
	assert.Equal(t, "Hello.", StripFooter(body))
	assert.Equal(t, "no footer", StripFooter("no footer"))
}
