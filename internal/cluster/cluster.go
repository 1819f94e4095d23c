// Package cluster groups enriched contacts by profile similarity. The
// grouping is opaque: a label on the contact, never identity. Embeddings are
// produced by an external collaborator and stored as opaque blobs; the
// clustering algorithm itself sits behind the Clusterer interface.
package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/budget"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Group is one cluster of contacts under an opaque label.
type Group struct {
	Label      string      `json:"label"`
	ContactIDs []uuid.UUID `json:"contact_ids"`
}

// Clusterer partitions contacts into labeled groups. Contacts without an
// embedding may be skipped; they simply appear in no group.
type Clusterer interface {
	Cluster(ctx context.Context, contacts []*domain.Contact) ([]Group, error)
}

// Embedder produces an embedding blob for a piece of text and reports the
// tokens consumed.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]byte, int, error)
}

// Store is the persistence surface clustering needs.
type Store interface {
	// ListClusterCandidates returns non-deleted enriched contacts for the
	// user, up to limit.
	ListClusterCandidates(ctx context.Context, userID int, limit int) ([]*domain.Contact, error)
	UpdateContactEmbedding(ctx context.Context, id uuid.UUID, embedding []byte) error
	UpdateContactClusterLabel(ctx context.Context, id uuid.UUID, label string) error
}

// Service embeds and clusters one user's enriched contacts.
type Service struct {
	store          Store
	embedder       Embedder
	clusterer      Clusterer
	ledger         *budget.Ledger
	embeddingModel string
	userID         int
}

// NewService creates a clustering service. ledger may be nil; embedding cost
// is then not recorded and embedding runs are not budget-gated.
func NewService(store Store, embedder Embedder, clusterer Clusterer, ledger *budget.Ledger, embeddingModel string, userID int) *Service {
	return &Service{
		store:          store,
		embedder:       embedder,
		clusterer:      clusterer,
		ledger:         ledger,
		embeddingModel: embeddingModel,
		userID:         userID,
	}
}

// profileText flattens the contact's enrichment fields into the text the
// embedding is computed over.
func profileText(c *domain.Contact) string {
	parts := []string{c.Name, c.Title, c.Company, c.Industry, c.Painpoint}
	var kept []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ". ")
}

// EmbedPending computes embeddings for enriched contacts that have none yet,
// checking the projected spend before each one.
func (s *Service) EmbedPending(ctx context.Context, limit int) (budget.BatchResult, error) {
	candidates, err := s.store.ListClusterCandidates(ctx, s.userID, limit)
	if err != nil {
		return budget.BatchResult{}, fmt.Errorf("listing contacts for embedding: %w", err)
	}

	var pending []*domain.Contact
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return budget.BatchResult{}, nil
	}

	unit := func(ctx context.Context, i int) error {
		return s.embedContact(ctx, pending[i])
	}

	if s.ledger == nil {
		result := budget.BatchResult{Requested: len(pending)}
		for i := range pending {
			if err := unit(ctx, i); err != nil {
				result.Failed++
				continue
			}
			result.Completed++
		}
		return result, nil
	}

	unitCost := func(int) float64 {
		return budget.OperationCost(domain.OpEmbedding, s.embeddingModel, 0)
	}
	return s.ledger.RunBatch(ctx, len(pending), unitCost, unit)
}

func (s *Service) embedContact(ctx context.Context, c *domain.Contact) error {
	embedding, tokens, err := s.embedder.Embed(ctx, profileText(c))
	if err != nil {
		logger.Warn("embedding failed", "contact_id", c.ID.String(), "error", err.Error())
		return err
	}
	if err := s.store.UpdateContactEmbedding(ctx, c.ID, embedding); err != nil {
		return fmt.Errorf("persisting embedding: %w", err)
	}
	c.Embedding = embedding

	if s.ledger != nil && tokens > 0 {
		cost := budget.OperationCost(domain.OpEmbedding, s.embeddingModel, tokens)
		if _, err := s.ledger.Record(ctx, domain.OpEmbedding, s.embeddingModel, tokens, cost, &c.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

// Run clusters the user's enriched contacts and applies the resulting labels.
// Returns the groups as produced by the clusterer. Contacts the clusterer
// did not place keep their previous label.
func (s *Service) Run(ctx context.Context, limit int) ([]Group, error) {
	contacts, err := s.store.ListClusterCandidates(ctx, s.userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing contacts for clustering: %w", err)
	}
	if len(contacts) == 0 {
		return nil, nil
	}

	groups, err := s.clusterer.Cluster(ctx, contacts)
	if err != nil {
		return nil, fmt.Errorf("clustering contacts: %w", err)
	}

	for _, g := range groups {
		for _, id := range g.ContactIDs {
			if err := s.store.UpdateContactClusterLabel(ctx, id, g.Label); err != nil {
				return nil, fmt.Errorf("applying cluster label %q: %w", g.Label, err)
			}
		}
	}

	logger.Info("contacts clustered", "contacts", fmt.Sprintf("%d", len(contacts)), "clusters", fmt.Sprintf("%d", len(groups)))
	return groups, nil
}
