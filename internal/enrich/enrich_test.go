package enrich

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/budget"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/lifecycle"
	"github.com/ignite/outreach-engine/internal/pkg/retry"
)

var now = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type memoryStore struct {
	contacts map[uuid.UUID]*domain.Contact
	costs    []*domain.CostLogEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{contacts: make(map[uuid.UUID]*domain.Contact)}
}

func (m *memoryStore) ListContactsByStatus(_ context.Context, userID int, status domain.ContactStatus, limit int) ([]*domain.Contact, error) {
	var out []*domain.Contact
	for _, c := range m.contacts {
		if c.UserID == userID && c.Status == status && !c.Deleted {
			out = append(out, c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memoryStore) UpdateContactEnrichment(_ context.Context, c *domain.Contact, expected domain.ContactStatus) error {
	current, ok := m.contacts[c.ID]
	if !ok || current.Status != expected {
		return domain.ErrNotFound
	}
	clone := *c
	m.contacts[c.ID] = &clone
	return nil
}

func (m *memoryStore) AppendCostLog(_ context.Context, entry *domain.CostLogEntry) error {
	m.costs = append(m.costs, entry)
	return nil
}

func (m *memoryStore) SumCosts(_ context.Context, userID int, from, to time.Time) (float64, error) {
	var total float64
	for _, e := range m.costs {
		if e.UserID == userID && !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			total += e.Cost
		}
	}
	return total, nil
}

func (m *memoryStore) CostBreakdownByModel(_ context.Context, userID int, from, to time.Time) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, e := range m.costs {
		if e.UserID == userID && !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out[e.Model] += e.Cost
		}
	}
	return out, nil
}

func (m *memoryStore) AppendAudit(_ context.Context, _ *domain.AuditLogEntry) error { return nil }

type auditSink struct {
	entries []*domain.AuditLogEntry
}

func (a *auditSink) AppendAudit(_ context.Context, e *domain.AuditLogEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

type stubEnricher struct {
	calls   int
	results []func() (*Enrichment, int, error)
}

func (s *stubEnricher) Enrich(context.Context, *domain.Contact) (*Enrichment, int, error) {
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i]()
}

func ok(title, company, painpoint string, score float64) func() (*Enrichment, int, error) {
	return func() (*Enrichment, int, error) {
		return &Enrichment{Title: title, Company: company, Painpoint: painpoint, RelevanceScore: &score}, 450, nil
	}
}

func fail(err error) func() (*Enrichment, int, error) {
	return func() (*Enrichment, int, error) { return nil, 0, err }
}

func newTestService(store *memoryStore, enricher Enricher, dailyLimit float64) (*Service, *auditSink) {
	ledger := budget.NewLedger(store, 1, dailyLimit)
	ledger.SetClock(func() time.Time { return now })

	sink := &auditSink{}
	recorder := lifecycle.NewRecorder(sink)

	svc := NewService(store, enricher, ledger, recorder, "gpt-4-turbo-preview", 1)
	svc.SetClock(func() time.Time { return now })
	svc.SetRetryPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Jitter: false})
	return svc, sink
}

func (m *memoryStore) seedImported() *domain.Contact {
	c := &domain.Contact{
		ID:       uuid.New(),
		UserID:   1,
		Email:    "jane@acme.example.com",
		Name:     "Jane",
		Industry: "SaaS",
		Status:   domain.ContactImported,
	}
	m.contacts[c.ID] = c
	return c
}

func TestEnrichContactSuccess(t *testing.T) {
	store := newMemoryStore()
	svc, sink := newTestService(store, &stubEnricher{results: []func() (*Enrichment, int, error){
		ok("VP Engineering", "Acme", "scaling the platform team", 8.5),
	}}, 100)
	contact := store.seedImported()

	err := svc.EnrichContact(context.Background(), contact)
	require.NoError(t, err)

	stored := store.contacts[contact.ID]
	assert.Equal(t, domain.ContactEnriched, stored.Status)
	assert.Equal(t, "VP Engineering", stored.Title)
	assert.Equal(t, "Acme", stored.Company)
	assert.Equal(t, "scaling the platform team", stored.Painpoint)
	assert.Equal(t, 8.5, stored.RelevanceScore)
	assert.Empty(t, stored.ErrorMessage)

	require.Len(t, store.costs, 1)
	assert.Equal(t, domain.OpEnrichment, store.costs[0].Operation)
	assert.Equal(t, 450, store.costs[0].TokensUsed)
	assert.InDelta(t, 0.0045, store.costs[0].Cost, 1e-9)

	require.Len(t, sink.entries, 1)
	assert.Equal(t, "enrich", sink.entries[0].Action)
	assert.Equal(t, string(domain.ContactImported), sink.entries[0].OldStatus)
	assert.Equal(t, string(domain.ContactEnriched), sink.entries[0].NewStatus)
}

func TestEnrichContactClampsScore(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  float64
	}{
		{"above range", 14.2, 10},
		{"below range", -3, 0},
		{"in range", 6.1, 6.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			svc, _ := newTestService(store, &stubEnricher{results: []func() (*Enrichment, int, error){
				ok("CTO", "Acme", "hiring", tt.score),
			}}, 100)
			contact := store.seedImported()

			require.NoError(t, svc.EnrichContact(context.Background(), contact))
			assert.Equal(t, tt.want, store.contacts[contact.ID].RelevanceScore)
		})
	}
}

func TestEnrichContactIncompleteResponseFailsWithoutRetry(t *testing.T) {
	stub := &stubEnricher{results: []func() (*Enrichment, int, error){
		ok("CTO", "", "hiring", 5),
	}}
	store := newMemoryStore()
	svc, sink := newTestService(store, stub, 100)
	contact := store.seedImported()

	err := svc.EnrichContact(context.Background(), contact)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEnrichmentFailed))
	assert.Equal(t, 1, stub.calls, "an unusable response is not retried")

	stored := store.contacts[contact.ID]
	assert.Equal(t, domain.ContactEnrichmentFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "missing company")
	assert.Equal(t, 1, stored.RetryCount)

	require.Len(t, sink.entries, 1)
	assert.Equal(t, "enrich_failed", sink.entries[0].Action)
}

func TestEnrichContactRateLimitedAfterRetries(t *testing.T) {
	stub := &stubEnricher{results: []func() (*Enrichment, int, error){
		fail(fmt.Errorf("throttled: %w", domain.ErrRateLimited)),
	}}
	store := newMemoryStore()
	svc, sink := newTestService(store, stub, 100)
	contact := store.seedImported()

	err := svc.EnrichContact(context.Background(), contact)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRateLimited))
	assert.Equal(t, 3, stub.calls, "throttling is retried up to the cap")

	assert.Equal(t, domain.ContactRateLimited, store.contacts[contact.ID].Status)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, "enrich_rate_limited", sink.entries[0].Action)
}

func TestEnrichContactTransientErrorThenSuccess(t *testing.T) {
	stub := &stubEnricher{results: []func() (*Enrichment, int, error){
		fail(errors.New("connection reset")),
		ok("CEO", "Acme", "growth", 7),
	}}
	store := newMemoryStore()
	svc, _ := newTestService(store, stub, 100)
	contact := store.seedImported()

	require.NoError(t, svc.EnrichContact(context.Background(), contact))
	assert.Equal(t, 2, stub.calls)
	assert.Equal(t, domain.ContactEnriched, store.contacts[contact.ID].Status)
	assert.Zero(t, store.contacts[contact.ID].RetryCount)
}

func TestEnrichContactRejectsWrongState(t *testing.T) {
	store := newMemoryStore()
	svc, _ := newTestService(store, &stubEnricher{results: []func() (*Enrichment, int, error){
		ok("CTO", "Acme", "hiring", 5),
	}}, 100)
	contact := store.seedImported()
	contact.Status = domain.ContactEnriched

	err := svc.EnrichContact(context.Background(), contact)
	assert.True(t, domain.IsInvalidTransition(err))
}

func TestEnrichContactRejectsDeleted(t *testing.T) {
	store := newMemoryStore()
	svc, _ := newTestService(store, &stubEnricher{}, 100)
	contact := store.seedImported()
	contact.Deleted = true

	err := svc.EnrichContact(context.Background(), contact)
	assert.True(t, errors.Is(err, domain.ErrContactDeleted))
}

func TestRetryRateLimitedRecovers(t *testing.T) {
	store := newMemoryStore()
	svc, _ := newTestService(store, &stubEnricher{results: []func() (*Enrichment, int, error){
		ok("CTO", "Acme", "hiring", 5),
	}}, 100)
	contact := store.seedImported()
	contact.Status = domain.ContactRateLimited

	result, err := svc.RetryRateLimited(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, domain.ContactEnriched, store.contacts[contact.ID].Status)
}

func TestEnrichBatchStopsOnBudgetCeiling(t *testing.T) {
	store := newMemoryStore()
	// Each enrichment unit is projected at 0.05; a 0.12 ceiling admits two.
	svc, _ := newTestService(store, &stubEnricher{results: []func() (*Enrichment, int, error){
		func() (*Enrichment, int, error) {
			score := 5.0
			return &Enrichment{Title: "CTO", Company: "Acme", Painpoint: "hiring", RelevanceScore: &score}, 5000, nil
		},
	}}, 0.12)

	for i := 0; i < 5; i++ {
		store.seedImported()
	}

	result, err := svc.EnrichImported(context.Background(), 50)
	require.NoError(t, err)

	assert.True(t, result.Stopped)
	assert.Equal(t, budget.StoppedReasonBudget, result.StoppedReason)
	assert.Equal(t, 2, result.Completed, "completed work before the stop stands")
	assert.Equal(t, 5, result.Requested)

	enriched := 0
	for _, c := range store.contacts {
		if c.Status == domain.ContactEnriched {
			enriched++
		}
	}
	assert.Equal(t, 2, enriched)
}

func TestEnrichBatchCountsFailures(t *testing.T) {
	store := newMemoryStore()
	svc, _ := newTestService(store, &stubEnricher{results: []func() (*Enrichment, int, error){
		ok("CTO", "", "hiring", 5),
	}}, 100)
	store.seedImported()
	store.seedImported()

	result, err := svc.EnrichImported(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Zero(t, result.Completed)
	assert.False(t, result.Stopped)
}

func TestValidateEnrichment(t *testing.T) {
	score := 5.0
	assert.Empty(t, validateEnrichment(&Enrichment{Title: "a", Company: "b", Painpoint: "c", RelevanceScore: &score}))
	assert.Contains(t, validateEnrichment(&Enrichment{Company: "b", Painpoint: "c", RelevanceScore: &score}), "title")
	assert.Contains(t, validateEnrichment(&Enrichment{Title: "a", Company: "b", Painpoint: "c"}), "relevance_score")
}
