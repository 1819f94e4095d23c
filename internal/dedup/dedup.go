// Package dedup enforces contact identity. Identity is the normalized
// email, unique within the non-deleted set across all campaigns. Soft
// deleting a contact frees its address for re-import; every duplicate
// detection is surfaced to the caller, never silently skipped.
package dedup

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Store is the persistence surface dedup needs. MergeContacts must apply
// the whole merge atomically in one transaction.
type Store interface {
	ContactByEmail(ctx context.Context, email string) (*domain.Contact, error)
	MergeContacts(ctx context.Context, primary *domain.Contact, duplicateID uuid.UUID) error
}

// Checker detects duplicates against the store and within a batch.
type Checker struct {
	store Store
}

// NewChecker creates a dedup checker.
func NewChecker(store Store) *Checker {
	return &Checker{store: store}
}

// CheckEmail reports domain.ErrDuplicateContact when a non-deleted contact
// with the same normalized address already exists.
func (c *Checker) CheckEmail(ctx context.Context, email string) error {
	normalized := domain.NormalizeEmail(email)
	existing, err := c.store.ContactByEmail(ctx, normalized)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil
		}
		return fmt.Errorf("checking for duplicate contact: %w", err)
	}
	if existing.Deleted {
		return nil
	}
	return fmt.Errorf("contact with email %s already exists: %w", normalized, domain.ErrDuplicateContact)
}

// BatchDuplicate describes a row rejected during intra-batch dedup.
type BatchDuplicate struct {
	Row    int    `json:"row"`
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// FilterBatch splits batch rows into unique emails and duplicates. The
// first occurrence of an address wins; later rows are flagged with the
// winning row number. Row numbers are 1-based.
func FilterBatch(emails []string) (unique []int, duplicates []BatchDuplicate) {
	seen := make(map[string]int, len(emails))
	for i, email := range emails {
		normalized := domain.NormalizeEmail(email)
		if first, ok := seen[normalized]; ok {
			duplicates = append(duplicates, BatchDuplicate{
				Row:    i + 1,
				Email:  normalized,
				Reason: fmt.Sprintf("duplicate of row %d in this batch", first+1),
			})
			continue
		}
		seen[normalized] = i
		unique = append(unique, i)
	}
	return unique, duplicates
}

// Merge folds duplicate into primary: field-by-field prefer-populated,
// drafts and replies re-parented to primary, duplicate soft deleted. The
// store applies everything in one transaction.
func (c *Checker) Merge(ctx context.Context, primary, duplicate *domain.Contact) (*domain.Contact, error) {
	if primary.ID == duplicate.ID {
		return nil, fmt.Errorf("cannot merge a contact into itself: %w", domain.ErrValidation)
	}
	if primary.Deleted {
		return nil, fmt.Errorf("merge target is deleted: %w", domain.ErrContactDeleted)
	}

	merged := *primary
	merged.Name = preferText(primary.Name, duplicate.Name)
	merged.Industry = preferText(primary.Industry, duplicate.Industry)
	merged.Title = preferText(primary.Title, duplicate.Title)
	merged.Company = preferText(primary.Company, duplicate.Company)
	merged.Painpoint = preferText(primary.Painpoint, duplicate.Painpoint)
	if merged.RelevanceScore == 0 && duplicate.RelevanceScore != 0 {
		merged.RelevanceScore = duplicate.RelevanceScore
	}
	if merged.Timezone == "" {
		merged.Timezone = duplicate.Timezone
	}
	if len(merged.Embedding) == 0 {
		merged.Embedding = duplicate.Embedding
	}
	if merged.ClusterLabel == "" {
		merged.ClusterLabel = duplicate.ClusterLabel
	}
	// Consent restrictions survive a merge from either side.
	if duplicate.Unsubscribed {
		merged.Unsubscribed = true
		if merged.UnsubscribedAt == nil {
			merged.UnsubscribedAt = duplicate.UnsubscribedAt
		}
	}
	if duplicate.DoNotFollowup {
		merged.DoNotFollowup = true
	}

	if err := c.store.MergeContacts(ctx, &merged, duplicate.ID); err != nil {
		return nil, fmt.Errorf("merging contacts: %w", err)
	}

	logger.Info("contacts merged", "primary_id", merged.ID.String(), "duplicate_id", duplicate.ID.String())
	return &merged, nil
}

// preferText keeps the populated value; when both are set the longer one
// wins on the assumption that it carries more information.
func preferText(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if len(b) > len(a) {
		return b
	}
	return a
}
