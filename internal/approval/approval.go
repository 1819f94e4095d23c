// Package approval manages the human review step between drafting and
// sending. Single-draft operations are status-guarded; bulk approvals are
// grouped under a batch id and can be undone as a unit while the undo
// window is open.
package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/lifecycle"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/spamcheck"
)

// Store is the persistence surface approval needs. UpdateDraftStatus must
// apply the write only while the row still holds the expected status and
// return domain.ErrNotFound otherwise, so concurrent reviewers cannot
// double-apply a decision.
type Store interface {
	DraftByID(ctx context.Context, id uuid.UUID) (*domain.EmailDraft, error)
	UpdateDraftStatus(ctx context.Context, d *domain.EmailDraft, expected domain.DraftStatus) error
	ListPendingDrafts(ctx context.Context, userID int) ([]*domain.EmailDraft, error)
}

// Service runs the approval workflow.
type Service struct {
	store Store
	undo  *UndoWindow
	audit *lifecycle.Recorder

	// autoApproveBelow is the spam score under which drafts may skip human
	// review. Zero disables auto-approval.
	autoApproveBelow float64

	now func() time.Time
}

// NewService creates an approval service. undo may be nil when redis is not
// configured; bulk approvals then cannot be undone.
func NewService(store Store, undo *UndoWindow, audit *lifecycle.Recorder, autoApproveBelow float64) *Service {
	return &Service{
		store:            store,
		undo:             undo,
		audit:            audit,
		autoApproveBelow: autoApproveBelow,
		now:              time.Now,
	}
}

// SetClock overrides the service's clock (for tests).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Approve moves a pending draft to approved. Approving an already approved
// draft is a no-op; any other state is rejected.
func (s *Service) Approve(ctx context.Context, draftID uuid.UUID, actor, notes string) (*domain.EmailDraft, error) {
	draft, err := s.store.DraftByID(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if draft.Status == domain.DraftApproved {
		logger.Warn("draft already approved", "draft_id", draftID.String())
		return draft, nil
	}
	return s.approve(ctx, draft, actor, notes)
}

func (s *Service) approve(ctx context.Context, draft *domain.EmailDraft, actor, notes string) (*domain.EmailDraft, error) {
	from := draft.Status
	if err := lifecycle.GuardDraft(from, domain.DraftApproved); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	draft.Status = domain.DraftApproved
	draft.ApprovedBy = actor
	draft.ApprovedAt = &now
	draft.ApprovalNotes = notes
	draft.UpdatedAt = now

	if err := s.store.UpdateDraftStatus(ctx, draft, from); err != nil {
		return nil, fmt.Errorf("approving draft: %w", err)
	}
	if err := s.audit.DraftTransition(ctx, draft.ID, from, domain.DraftApproved, "approve", actor, notes); err != nil {
		return nil, err
	}
	logger.Info("draft approved", "draft_id", draft.ID.String(), "actor", actor)
	return draft, nil
}

// Reject moves a pending draft to rejected. The reason is mandatory;
// rejected is terminal.
func (s *Service) Reject(ctx context.Context, draftID uuid.UUID, actor, reason string) (*domain.EmailDraft, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("rejection reason is required: %w", domain.ErrValidation)
	}

	draft, err := s.store.DraftByID(ctx, draftID)
	if err != nil {
		return nil, err
	}
	from := draft.Status
	if err := lifecycle.GuardDraft(from, domain.DraftRejected); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	draft.Status = domain.DraftRejected
	draft.RejectionReason = reason
	draft.UpdatedAt = now

	if err := s.store.UpdateDraftStatus(ctx, draft, from); err != nil {
		return nil, fmt.Errorf("rejecting draft: %w", err)
	}
	if err := s.audit.DraftTransition(ctx, draft.ID, from, domain.DraftRejected, "reject", actor, reason); err != nil {
		return nil, err
	}
	logger.Info("draft rejected", "draft_id", draft.ID.String(), "actor", actor)
	return draft, nil
}

// Edit replaces a pending draft's subject and body and marks it edited.
// Approved or resolved drafts cannot be edited in place.
func (s *Service) Edit(ctx context.Context, draftID uuid.UUID, subject, body, actor string) (*domain.EmailDraft, error) {
	draft, err := s.store.DraftByID(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if draft.Status != domain.DraftPendingApproval {
		return nil, &domain.InvalidStateTransitionError{
			Entity: domain.EntityDraft,
			From:   string(draft.Status),
			To:     string(domain.DraftPendingApproval),
		}
	}

	draft.Subject = subject
	draft.Body = body
	draft.Edited = true
	draft.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateDraftStatus(ctx, draft, domain.DraftPendingApproval); err != nil {
		return nil, fmt.Errorf("editing draft: %w", err)
	}
	if err := s.audit.DraftTransition(ctx, draft.ID, domain.DraftPendingApproval, domain.DraftPendingApproval, "edit", actor, ""); err != nil {
		return nil, err
	}
	return draft, nil
}

// Cancel reverts an approved draft to pending_approval before it is sent.
func (s *Service) Cancel(ctx context.Context, draftID uuid.UUID, actor, reason string) (*domain.EmailDraft, error) {
	draft, err := s.store.DraftByID(ctx, draftID)
	if err != nil {
		return nil, err
	}
	from := draft.Status
	if err := lifecycle.GuardDraft(from, domain.DraftPendingApproval); err != nil {
		return nil, err
	}

	draft.Status = domain.DraftPendingApproval
	draft.CancelReason = reason
	draft.ApprovedBy = ""
	draft.ApprovedAt = nil
	draft.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateDraftStatus(ctx, draft, from); err != nil {
		return nil, fmt.Errorf("cancelling approval: %w", err)
	}
	if err := s.audit.DraftTransition(ctx, draft.ID, from, domain.DraftPendingApproval, "cancel_approval", actor, reason); err != nil {
		return nil, err
	}
	return draft, nil
}

// BulkFailure describes one draft that could not be approved in a batch.
type BulkFailure struct {
	DraftID uuid.UUID `json:"draft_id"`
	Reason  string    `json:"reason"`
}

// BulkResult summarizes a bulk approval.
type BulkResult struct {
	BatchID  uuid.UUID     `json:"batch_id"`
	Approved int           `json:"approved"`
	Failed   []BulkFailure `json:"failed,omitempty"`
}

// BulkApprove approves many drafts under one batch id and records the batch
// for undo. Per-draft failures are collected; the rest of the batch
// proceeds.
func (s *Service) BulkApprove(ctx context.Context, draftIDs []uuid.UUID, actor string) (*BulkResult, error) {
	result := &BulkResult{BatchID: uuid.New()}
	approved := make([]uuid.UUID, 0, len(draftIDs))

	for _, id := range draftIDs {
		draft, err := s.store.DraftByID(ctx, id)
		if err != nil {
			result.Failed = append(result.Failed, BulkFailure{DraftID: id, Reason: err.Error()})
			continue
		}
		if draft.Status != domain.DraftPendingApproval {
			result.Failed = append(result.Failed, BulkFailure{DraftID: id, Reason: fmt.Sprintf("draft is %s, not pending_approval", draft.Status)})
			continue
		}

		draft.BatchID = &result.BatchID
		if _, err := s.approve(ctx, draft, actor, ""); err != nil {
			result.Failed = append(result.Failed, BulkFailure{DraftID: id, Reason: err.Error()})
			continue
		}
		approved = append(approved, id)
	}
	result.Approved = len(approved)

	if s.undo != nil && len(approved) > 0 {
		if err := s.undo.Record(ctx, result.BatchID, approved); err != nil {
			return result, err
		}
	}

	logger.Info("bulk approval", "batch_id", result.BatchID.String(), "approved", result.Approved, "failed", len(result.Failed))
	return result, nil
}

// UndoBulkApproval reverts every draft of a batch to pending_approval.
// Valid only while the batch's undo window is open; drafts already sent or
// otherwise moved on are skipped.
func (s *Service) UndoBulkApproval(ctx context.Context, batchID uuid.UUID, actor string) (int, error) {
	if s.undo == nil {
		return 0, domain.ErrUndoWindowExpired
	}
	draftIDs, err := s.undo.Fetch(ctx, batchID)
	if err != nil {
		return 0, err
	}

	reverted := 0
	for _, id := range draftIDs {
		draft, err := s.store.DraftByID(ctx, id)
		if err != nil {
			logger.Warn("undo skipped missing draft", "draft_id", id.String())
			continue
		}
		if draft.Status != domain.DraftApproved {
			logger.Warn("undo skipped draft no longer approved", "draft_id", id.String(), "status", string(draft.Status))
			continue
		}
		if _, err := s.Cancel(ctx, id, actor, "bulk approval undone"); err != nil {
			return reverted, err
		}
		reverted++
	}

	if err := s.undo.Clear(ctx, batchID); err != nil {
		return reverted, err
	}
	logger.Info("bulk approval undone", "batch_id", batchID.String(), "reverted", reverted)
	return reverted, nil
}

// AutoApprove approves a pending draft without review when its spam score
// is under the quality threshold. Returns false when the draft stays
// pending.
func (s *Service) AutoApprove(ctx context.Context, draftID uuid.UUID) (bool, error) {
	if s.autoApproveBelow <= 0 {
		return false, nil
	}
	draft, err := s.store.DraftByID(ctx, draftID)
	if err != nil {
		return false, err
	}
	if draft.Status != domain.DraftPendingApproval {
		return false, nil
	}
	if score := spamcheck.Score(draft.Subject, draft.Body); score >= s.autoApproveBelow {
		return false, nil
	}
	if _, err := s.approve(ctx, draft, "auto", "auto-approved under quality threshold"); err != nil {
		return false, err
	}
	return true, nil
}

// ListPending returns drafts awaiting review for a user.
func (s *Service) ListPending(ctx context.Context, userID int) ([]*domain.EmailDraft, error) {
	return s.store.ListPendingDrafts(ctx, userID)
}
