// Package export produces contact and campaign exports and implements the
// irreversible erasure path. Exports exclude soft-deleted contacts unless
// explicitly asked for; erasure scrubs PII in place and cascades to the
// contact's drafts and replies before soft-deleting.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/lifecycle"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Store is the persistence surface export needs.
type Store interface {
	ListContacts(ctx context.Context, userID int, includeDeleted bool) ([]*domain.Contact, error)
	ContactByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error)
	ListDraftsByUser(ctx context.Context, userID int) ([]*domain.EmailDraft, error)
	ListDraftsByContact(ctx context.Context, contactID uuid.UUID) ([]*domain.EmailDraft, error)
	RepliesByDraft(ctx context.Context, draftID uuid.UUID) ([]*domain.Reply, error)
	// SaveErasedContact persists a scrubbed, soft-deleted contact.
	SaveErasedContact(ctx context.Context, c *domain.Contact) error
	ScrubDraft(ctx context.Context, d *domain.EmailDraft) error
	ScrubReply(ctx context.Context, r *domain.Reply) error
}

// Service runs exports and erasure for one user.
type Service struct {
	store  Store
	audit  *lifecycle.Recorder
	userID int
	now    func() time.Time
}

// NewService creates an export service.
func NewService(store Store, audit *lifecycle.Recorder, userID int) *Service {
	return &Service{store: store, audit: audit, userID: userID, now: time.Now}
}

// SetClock overrides the service's clock (for tests).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

var contactHeader = []string{
	"id", "email", "name", "industry", "title", "company", "painpoint",
	"relevance_score", "status", "cluster_label", "unsubscribed", "created_at",
}

// ContactsCSV writes the user's contacts as CSV. Soft-deleted contacts are
// excluded unless includeDeleted is set.
func (s *Service) ContactsCSV(ctx context.Context, w io.Writer, includeDeleted bool) error {
	contacts, err := s.store.ListContacts(ctx, s.userID, includeDeleted)
	if err != nil {
		return fmt.Errorf("listing contacts for export: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(contactHeader); err != nil {
		return err
	}
	for _, c := range contacts {
		row := []string{
			c.ID.String(),
			c.Email,
			c.Name,
			c.Industry,
			c.Title,
			c.Company,
			c.Painpoint,
			strconv.FormatFloat(c.RelevanceScore, 'f', 1, 64),
			string(c.Status),
			c.ClusterLabel,
			strconv.FormatBool(c.Unsubscribed),
			c.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ContactsJSON writes the user's contacts as a JSON array.
func (s *Service) ContactsJSON(ctx context.Context, w io.Writer, includeDeleted bool) error {
	contacts, err := s.store.ListContacts(ctx, s.userID, includeDeleted)
	if err != nil {
		return fmt.Errorf("listing contacts for export: %w", err)
	}
	if contacts == nil {
		contacts = []*domain.Contact{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(contacts)
}

// Snapshot is a full campaign export: every contact with its drafts and
// their replies.
type Snapshot struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Contacts    []*domain.Contact    `json:"contacts"`
	Drafts      []*domain.EmailDraft `json:"drafts"`
	Replies     []*domain.Reply      `json:"replies"`
}

// CampaignJSON writes a campaign snapshot as JSON.
func (s *Service) CampaignJSON(ctx context.Context, w io.Writer) error {
	contacts, err := s.store.ListContacts(ctx, s.userID, false)
	if err != nil {
		return fmt.Errorf("listing contacts for snapshot: %w", err)
	}
	drafts, err := s.store.ListDraftsByUser(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("listing drafts for snapshot: %w", err)
	}

	snapshot := Snapshot{
		GeneratedAt: s.now().UTC(),
		Contacts:    contacts,
		Drafts:      drafts,
	}
	for _, d := range drafts {
		replies, err := s.store.RepliesByDraft(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("listing replies for snapshot: %w", err)
		}
		snapshot.Replies = append(snapshot.Replies, replies...)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}

// Erase irreversibly scrubs a contact's PII and cascades to its drafts and
// replies, then soft-deletes the contact. Calling it again on an already
// erased contact is a no-op.
func (s *Service) Erase(ctx context.Context, contactID uuid.UUID, actor string) error {
	contact, err := s.store.ContactByID(ctx, contactID)
	if err != nil {
		return fmt.Errorf("loading contact for erasure: %w", err)
	}
	if contact.Deleted {
		return nil
	}
	from := contact.Status
	now := s.now().UTC()

	drafts, err := s.store.ListDraftsByContact(ctx, contactID)
	if err != nil {
		return fmt.Errorf("listing drafts for erasure: %w", err)
	}
	for _, d := range drafts {
		replies, err := s.store.RepliesByDraft(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("listing replies for erasure: %w", err)
		}
		for _, r := range replies {
			r.FromEmail = erasedEmail(contactID)
			r.CCRecipients = nil
			r.Body = ""
			r.AvailabilityText = ""
			if err := s.store.ScrubReply(ctx, r); err != nil {
				return fmt.Errorf("scrubbing reply: %w", err)
			}
		}

		d.ToEmail = erasedEmail(contactID)
		d.Subject = ""
		d.Body = ""
		if err := s.store.ScrubDraft(ctx, d); err != nil {
			return fmt.Errorf("scrubbing draft: %w", err)
		}
	}

	contact.Email = erasedEmail(contactID)
	contact.Name = ""
	contact.Industry = ""
	contact.Title = ""
	contact.Company = ""
	contact.Painpoint = ""
	contact.Timezone = ""
	contact.ErrorMessage = ""
	contact.Embedding = nil
	contact.ClusterLabel = ""
	contact.Status = domain.ContactDeleted
	contact.Deleted = true
	contact.DeletedAt = &now
	contact.UpdatedAt = now

	if err := s.store.SaveErasedContact(ctx, contact); err != nil {
		return fmt.Errorf("erasing contact: %w", err)
	}

	logger.Info("contact erased", "contact_id", contactID.String(), "drafts_scrubbed", fmt.Sprintf("%d", len(drafts)))
	return s.audit.ContactTransition(ctx, contactID, from, domain.ContactDeleted, "erase", actor, "erasure request")
}

func erasedEmail(id uuid.UUID) string {
	return fmt.Sprintf("deleted_%s@deleted.invalid", id)
}
