// Package enrich fills in contact profiles with AI research: title, company,
// painpoint and a relevance score. Enrichment is budget-gated per batch,
// retried on transient failures, and records every transition in the audit
// log. A contact whose response cannot be validated lands in
// enrichment_failed; throttled contacts land in rate_limited and are picked
// up again by the bulk retry.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/outreach-engine/internal/budget"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/lifecycle"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/pkg/retry"
)

// Enrichment is the research result for one contact. RelevanceScore is a
// pointer so a response that omits the field is distinguishable from a
// legitimate zero.
type Enrichment struct {
	Title          string   `json:"title"`
	Company        string   `json:"company"`
	Painpoint      string   `json:"painpoint"`
	RelevanceScore *float64 `json:"relevance_score"`
}

// Enricher produces an enrichment for a contact and reports the tokens
// consumed. OpenAIClient is the production implementation.
type Enricher interface {
	Enrich(ctx context.Context, contact *domain.Contact) (*Enrichment, int, error)
}

// Store is the persistence surface enrichment needs.
type Store interface {
	ListContactsByStatus(ctx context.Context, userID int, status domain.ContactStatus, limit int) ([]*domain.Contact, error)
	// UpdateContactEnrichment persists the contact's enrichment fields and
	// status, guarded on the status the caller read. Returns ErrNotFound when
	// the row moved on concurrently.
	UpdateContactEnrichment(ctx context.Context, c *domain.Contact, expected domain.ContactStatus) error
}

// Service runs enrichment for one user's contacts.
type Service struct {
	store    Store
	enricher Enricher
	ledger   *budget.Ledger
	audit    *lifecycle.Recorder
	model    string
	userID   int
	retryPol retry.Policy
	now      func() time.Time
}

// NewService creates an enrichment service. ledger may be nil, in which case
// no cost is recorded and batch runs are not budget-gated.
func NewService(store Store, enricher Enricher, ledger *budget.Ledger, audit *lifecycle.Recorder, model string, userID int) *Service {
	return &Service{
		store:    store,
		enricher: enricher,
		ledger:   ledger,
		audit:    audit,
		model:    model,
		userID:   userID,
		retryPol: retry.DefaultPolicy(),
		now:      time.Now,
	}
}

// SetClock overrides the service's clock (for tests).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetRetryPolicy overrides the retry schedule (for tests).
func (s *Service) SetRetryPolicy(p retry.Policy) { s.retryPol = p }

// EnrichContact enriches a single contact in place and persists the result.
// The contact must be in imported, enrichment_failed or rate_limited. On
// failure the contact is moved to enrichment_failed (or rate_limited when the
// provider throttled us) with the error message captured, and the error is
// returned.
func (s *Service) EnrichContact(ctx context.Context, contact *domain.Contact) error {
	if contact.Deleted {
		return domain.ErrContactDeleted
	}
	from := contact.Status
	if err := lifecycle.GuardContact(from, domain.ContactEnriched); err != nil {
		return err
	}

	var (
		result *Enrichment
		tokens int
	)
	err := retry.Do(ctx, s.retryPol, func(ctx context.Context) error {
		e, tk, err := s.enricher.Enrich(ctx, contact)
		if err != nil {
			return err
		}
		if reason := validateEnrichment(e); reason != "" {
			return retry.Stop(fmt.Errorf("%s: %w", reason, domain.ErrEnrichmentFailed))
		}
		result, tokens = e, tk
		return nil
	})
	if err != nil {
		return s.markFailed(ctx, contact, from, err)
	}

	contact.Title = strings.TrimSpace(result.Title)
	contact.Company = strings.TrimSpace(result.Company)
	contact.Painpoint = strings.TrimSpace(result.Painpoint)
	contact.RelevanceScore = clampScore(*result.RelevanceScore)
	contact.Status = domain.ContactEnriched
	contact.ErrorMessage = ""
	contact.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateContactEnrichment(ctx, contact, from); err != nil {
		return fmt.Errorf("persisting enrichment: %w", err)
	}

	if s.ledger != nil && tokens > 0 {
		cost := budget.OperationCost(domain.OpEnrichment, s.model, tokens)
		if _, err := s.ledger.Record(ctx, domain.OpEnrichment, s.model, tokens, cost, &contact.ID, nil); err != nil {
			return err
		}
	}

	logger.Info("contact enriched", "contact_id", contact.ID.String(), "relevance", fmt.Sprintf("%.1f", contact.RelevanceScore))
	return s.audit.ContactTransition(ctx, contact.ID, from, domain.ContactEnriched, "enrich", "system", "")
}

// markFailed records the failure on the contact. Throttling goes to
// rate_limited so the bulk retry can pick it up; everything else goes to
// enrichment_failed with the error message captured.
func (s *Service) markFailed(ctx context.Context, contact *domain.Contact, from domain.ContactStatus, cause error) error {
	to := domain.ContactEnrichmentFailed
	action := "enrich_failed"
	if errors.Is(cause, domain.ErrRateLimited) {
		to = domain.ContactRateLimited
		action = "enrich_rate_limited"
	}

	contact.Status = to
	contact.ErrorMessage = cause.Error()
	contact.RetryCount++
	contact.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateContactEnrichment(ctx, contact, from); err != nil {
		return fmt.Errorf("recording enrichment failure: %w", err)
	}
	if err := s.audit.ContactTransition(ctx, contact.ID, from, to, action, "system", cause.Error()); err != nil {
		return err
	}

	logger.Warn("enrichment failed", "contact_id", contact.ID.String(), "status", string(to), "error", cause.Error())
	if to == domain.ContactEnrichmentFailed && !errors.Is(cause, domain.ErrEnrichmentFailed) {
		return fmt.Errorf("%v: %w", cause, domain.ErrEnrichmentFailed)
	}
	return cause
}

// validateEnrichment checks that the model returned every required field.
// Returns the reason when the response is unusable, "" when it is complete.
func validateEnrichment(e *Enrichment) string {
	var missing []string
	if strings.TrimSpace(e.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(e.Company) == "" {
		missing = append(missing, "company")
	}
	if strings.TrimSpace(e.Painpoint) == "" {
		missing = append(missing, "painpoint")
	}
	if e.RelevanceScore == nil {
		missing = append(missing, "relevance_score")
	}
	if len(missing) > 0 {
		return "incomplete enrichment response, missing " + strings.Join(missing, ", ")
	}
	return ""
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// EnrichBatch enriches up to limit contacts in the given status, checking
// the projected spend before each one. Per-contact failures are counted but
// do not stop the batch; hitting the budget ceiling does.
func (s *Service) EnrichBatch(ctx context.Context, status domain.ContactStatus, limit int) (budget.BatchResult, error) {
	contacts, err := s.store.ListContactsByStatus(ctx, s.userID, status, limit)
	if err != nil {
		return budget.BatchResult{}, fmt.Errorf("listing contacts for enrichment: %w", err)
	}
	if len(contacts) == 0 {
		return budget.BatchResult{}, nil
	}

	unitCost := func(int) float64 {
		return budget.OperationCost(domain.OpEnrichment, s.model, 0)
	}
	unit := func(ctx context.Context, i int) error {
		return s.EnrichContact(ctx, contacts[i])
	}

	if s.ledger == nil {
		result := budget.BatchResult{Requested: len(contacts)}
		for i := range contacts {
			if err := unit(ctx, i); err != nil {
				result.Failed++
				continue
			}
			result.Completed++
		}
		return result, nil
	}
	return s.ledger.RunBatch(ctx, len(contacts), unitCost, unit)
}

// EnrichImported enriches the backlog of freshly imported contacts.
func (s *Service) EnrichImported(ctx context.Context, limit int) (budget.BatchResult, error) {
	return s.EnrichBatch(ctx, domain.ContactImported, limit)
}

// RetryRateLimited re-runs enrichment for contacts parked in rate_limited.
func (s *Service) RetryRateLimited(ctx context.Context, limit int) (budget.BatchResult, error) {
	return s.EnrichBatch(ctx, domain.ContactRateLimited, limit)
}

// RetryFailed re-runs enrichment for contacts in enrichment_failed. Meant
// for explicit operator-driven retries, not the scheduler.
func (s *Service) RetryFailed(ctx context.Context, limit int) (budget.BatchResult, error) {
	return s.EnrichBatch(ctx, domain.ContactEnrichmentFailed, limit)
}

// Estimate projects the cost of enriching n contacts before committing.
func (s *Service) Estimate(n int, embeddingModel string) budget.CostEstimate {
	return budget.EstimateEnrichmentCost(n, s.model, embeddingModel)
}
