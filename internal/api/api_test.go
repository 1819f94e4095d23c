package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/compliance"
	"github.com/ignite/outreach-engine/internal/domain"
)

type gateStore struct {
	contacts map[uuid.UUID]*domain.Contact
	tokens   map[string]*domain.UnsubscribeToken
}

func newGateStore() *gateStore {
	return &gateStore{
		contacts: make(map[uuid.UUID]*domain.Contact),
		tokens:   make(map[string]*domain.UnsubscribeToken),
	}
}

func (g *gateStore) SaveUnsubscribeToken(_ context.Context, t *domain.UnsubscribeToken) error {
	g.tokens[t.Token] = t
	return nil
}

func (g *gateStore) UnsubscribeTokenByValue(_ context.Context, value string) (*domain.UnsubscribeToken, error) {
	t, ok := g.tokens[value]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (g *gateStore) MarkTokenUsed(context.Context, uuid.UUID, time.Time) error { return nil }

func (g *gateStore) ContactByID(_ context.Context, id uuid.UUID) (*domain.Contact, error) {
	c, ok := g.contacts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (g *gateStore) SetContactUnsubscribed(_ context.Context, id uuid.UUID, from domain.ContactStatus, at time.Time) error {
	c, ok := g.contacts[id]
	if !ok || c.Status != from {
		return domain.ErrNotFound
	}
	c.Status = domain.ContactUnsubscribed
	c.Unsubscribed = true
	c.UnsubscribedAt = &at
	return nil
}

// The footer link in every outgoing email must resolve against the public
// router and unsubscribe the contact in one click.
func TestEmailedUnsubscribeLinkUnsubscribesContact(t *testing.T) {
	store := newGateStore()
	contact := &domain.Contact{
		ID:     uuid.New(),
		Email:  "jane@example.com",
		Name:   "Jane",
		Status: domain.ContactEmailSent,
	}
	store.contacts[contact.ID] = contact

	gate := compliance.NewGate(store, nil, "http://unused/unsubscribe")
	srv := httptest.NewServer(NewRouter(&Handlers{Gate: gate}))
	defer srv.Close()

	token, err := gate.IssueToken(context.Background(), contact.ID)
	require.NoError(t, err)

	// The link exactly as the drafting footer embeds it, against this server.
	link := compliance.NewGate(store, nil, srv.URL+"/unsubscribe").URLFor(token.Token)

	resp, err := http.Get(link)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.True(t, store.contacts[contact.ID].Unsubscribed)
	assert.Equal(t, domain.ContactUnsubscribed, store.contacts[contact.ID].Status)
	require.NotNil(t, store.contacts[contact.ID].UnsubscribedAt)
}

// Repeated clicks on the same link stay idempotent at the HTTP surface.
func TestEmailedUnsubscribeLinkIsIdempotent(t *testing.T) {
	store := newGateStore()
	contact := &domain.Contact{
		ID:     uuid.New(),
		Email:  "jane@example.com",
		Status: domain.ContactEmailSent,
	}
	store.contacts[contact.ID] = contact

	gate := compliance.NewGate(store, nil, "http://unused/unsubscribe")
	srv := httptest.NewServer(NewRouter(&Handlers{Gate: gate}))
	defer srv.Close()

	token, err := gate.IssueToken(context.Background(), contact.ID)
	require.NoError(t, err)
	link := compliance.NewGate(store, nil, srv.URL+"/unsubscribe").URLFor(token.Token)

	for i := 0; i < 2; i++ {
		resp, err := http.Get(link)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.True(t, store.contacts[contact.ID].Unsubscribed)
}
