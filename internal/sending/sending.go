// Package sending runs the gate pipeline between an approved draft and the
// wire. Gates run in a fixed order: compliance, spam, schedule, quota.
// A blocked send never reaches the mailer, and each gate's outcome maps to
// a distinct draft status so the operator can tell deferred from failed.
package sending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/compliance"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/lifecycle"
	"github.com/ignite/outreach-engine/internal/mailer"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/pkg/retry"
	"github.com/ignite/outreach-engine/internal/quota"
	"github.com/ignite/outreach-engine/internal/schedule"
	"github.com/ignite/outreach-engine/internal/spamcheck"
)

// Store is the persistence surface sending needs. UpdateDraftStatus must be
// status-guarded: concurrent senders racing on the same draft get
// domain.ErrNotFound for all but the winner.
type Store interface {
	DraftByID(ctx context.Context, id uuid.UUID) (*domain.EmailDraft, error)
	UpdateDraftStatus(ctx context.Context, d *domain.EmailDraft, expected domain.DraftStatus) error
	ContactByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error)
	UpdateContactStatus(ctx context.Context, id uuid.UUID, from, to domain.ContactStatus) error
	ListDueScheduledDrafts(ctx context.Context, userID int, now time.Time) ([]*domain.EmailDraft, error)
}

// Sender sends approved drafts through the gate pipeline.
type Sender struct {
	store    Store
	mail     mailer.Mailer
	gate     *compliance.Gate
	spam     *spamcheck.Checker
	policy   *schedule.Policy
	tracker  *quota.Tracker
	audit    *lifecycle.Recorder
	retryPol retry.Policy
	now      func() time.Time
}

// NewSender wires the gate pipeline.
func NewSender(store Store, mail mailer.Mailer, gate *compliance.Gate, spam *spamcheck.Checker, policy *schedule.Policy, tracker *quota.Tracker, audit *lifecycle.Recorder) *Sender {
	return &Sender{
		store:    store,
		mail:     mail,
		gate:     gate,
		spam:     spam,
		policy:   policy,
		tracker:  tracker,
		audit:    audit,
		retryPol: retry.DefaultPolicy(),
		now:      time.Now,
	}
}

// SetClock overrides the sender's clock (for tests).
func (s *Sender) SetClock(now func() time.Time) { s.now = now }

// SetRetryPolicy overrides the mailer retry schedule (for tests).
func (s *Sender) SetRetryPolicy(p retry.Policy) { s.retryPol = p }

// Send pushes one draft through the pipeline. Outcomes:
//   - compliance or spam violation: error, draft status unchanged
//   - outside the send window: draft becomes scheduled with ScheduledAt
//   - quota exhausted: draft becomes quota_exceeded
//   - mailer gives up after the retry cap: draft becomes send_failed
//   - success: draft becomes sent, contact becomes email_sent
func (s *Sender) Send(ctx context.Context, draftID uuid.UUID) (*domain.EmailDraft, error) {
	draft, err := s.store.DraftByID(ctx, draftID)
	if err != nil {
		return nil, err
	}

	switch draft.Status {
	case domain.DraftSent:
		return nil, domain.ErrDuplicateSend
	case domain.DraftApproved, domain.DraftScheduled, domain.DraftQuotaExceeded:
		// Sendable states; scheduled and quota_exceeded drafts are retried
		// through the same pipeline.
	default:
		return nil, domain.ErrDraftNotApproved
	}

	contact, err := s.store.ContactByID(ctx, draft.ContactID)
	if err != nil {
		return nil, err
	}

	// Gate 1: compliance.
	if err := s.gate.CheckContact(contact); err != nil {
		return nil, err
	}

	// Gate 2: spam. The draft stays in its current status so it can be
	// revised and retried.
	if _, err := s.spam.Check(draft.Subject, draft.Body); err != nil {
		return nil, err
	}

	// Gate 3: schedule. Outside the window the send is deferred, not
	// dropped.
	if !s.policy.CanSendNow(contact.Timezone) {
		return s.deferSend(ctx, draft, contact.Timezone)
	}

	// Gate 4: quota. Exhaustion is an expected outcome, not a failure.
	if _, err := s.tracker.Consume(ctx); err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			return s.markQuotaExceeded(ctx, draft)
		}
		return nil, err
	}

	return s.transmit(ctx, draft, contact)
}

// deferSend parks the draft as scheduled for the next send slot in the
// contact's timezone.
func (s *Sender) deferSend(ctx context.Context, draft *domain.EmailDraft, timezone string) (*domain.EmailDraft, error) {
	from := draft.Status
	if from == domain.DraftScheduled {
		return draft, nil
	}
	if err := lifecycle.GuardDraft(from, domain.DraftScheduled); err != nil {
		return nil, err
	}

	at := s.policy.NextSendTime(timezone)
	draft.Status = domain.DraftScheduled
	draft.ScheduledAt = &at
	draft.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateDraftStatus(ctx, draft, from); err != nil {
		return nil, fmt.Errorf("scheduling draft: %w", err)
	}
	if err := s.audit.DraftTransition(ctx, draft.ID, from, domain.DraftScheduled, "defer_send", "system", at.Format(time.RFC3339)); err != nil {
		return nil, err
	}
	logger.Info("send deferred outside business hours", "draft_id", draft.ID.String(), "scheduled_at", at.Format(time.RFC3339))
	return draft, nil
}

func (s *Sender) markQuotaExceeded(ctx context.Context, draft *domain.EmailDraft) (*domain.EmailDraft, error) {
	from := draft.Status
	if from == domain.DraftQuotaExceeded {
		return draft, nil
	}
	if err := lifecycle.GuardDraft(from, domain.DraftQuotaExceeded); err != nil {
		return nil, err
	}

	draft.Status = domain.DraftQuotaExceeded
	draft.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateDraftStatus(ctx, draft, from); err != nil {
		return nil, fmt.Errorf("marking quota exceeded: %w", err)
	}
	if err := s.audit.DraftTransition(ctx, draft.ID, from, domain.DraftQuotaExceeded, "quota_exceeded", "system", ""); err != nil {
		return nil, err
	}
	logger.Warn("send blocked by daily quota", "draft_id", draft.ID.String())
	return draft, nil
}

// transmit hands the draft to the mailer with the bounded retry policy and
// finishes the bookkeeping on success or gives up with send_failed.
func (s *Sender) transmit(ctx context.Context, draft *domain.EmailDraft, contact *domain.Contact) (*domain.EmailDraft, error) {
	from := draft.Status

	var result *mailer.Result
	err := retry.Do(ctx, s.retryPol, func(ctx context.Context) error {
		var sendErr error
		result, sendErr = s.mail.Send(ctx, mailer.Message{
			To:       draft.ToEmail,
			Subject:  draft.Subject,
			Body:     draft.Body,
			DraftID:  draft.ID,
			ThreadID: draft.ThreadID,
		})
		return sendErr
	})
	if err != nil {
		return s.markSendFailed(ctx, draft, from, err)
	}

	now := s.now().UTC()
	draft.Status = domain.DraftSent
	draft.MessageID = result.MessageID
	draft.ThreadID = result.ThreadID
	draft.SentAt = &now
	draft.UpdatedAt = now

	if err := s.store.UpdateDraftStatus(ctx, draft, from); err != nil {
		return nil, fmt.Errorf("finalizing sent draft: %w", err)
	}
	if err := s.audit.DraftTransition(ctx, draft.ID, from, domain.DraftSent, "send", "system", result.MessageID); err != nil {
		return nil, err
	}

	if lifecycle.CanTransitionContact(contact.Status, domain.ContactEmailSent) {
		if err := s.store.UpdateContactStatus(ctx, contact.ID, contact.Status, domain.ContactEmailSent); err != nil {
			return nil, fmt.Errorf("updating contact after send: %w", err)
		}
		if err := s.audit.ContactTransition(ctx, contact.ID, contact.Status, domain.ContactEmailSent, "send", "system", ""); err != nil {
			return nil, err
		}
	}

	logger.Info("draft sent", "draft_id", draft.ID.String(), "message_id", result.MessageID)
	return draft, nil
}

func (s *Sender) markSendFailed(ctx context.Context, draft *domain.EmailDraft, from domain.DraftStatus, cause error) (*domain.EmailDraft, error) {
	draft.Status = domain.DraftSendFailed
	draft.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateDraftStatus(ctx, draft, from); err != nil {
		return nil, fmt.Errorf("marking send failed: %w", err)
	}
	if err := s.audit.DraftTransition(ctx, draft.ID, from, domain.DraftSendFailed, "send_failed", "system", cause.Error()); err != nil {
		return nil, err
	}
	logger.Error("send failed after retries", "draft_id", draft.ID.String(), "error", cause.Error())
	return draft, fmt.Errorf("sending draft %s: %w", draft.ID, cause)
}

// BulkSendResult summarizes a bulk send.
type BulkSendResult struct {
	Sent          int `json:"sent"`
	Scheduled     int `json:"scheduled"`
	QuotaExceeded int `json:"quota_exceeded"`
	Failed        int `json:"failed"`
}

// SendBulk pushes many drafts through the pipeline, counting each outcome.
// Per-draft errors do not abort the batch.
func (s *Sender) SendBulk(ctx context.Context, draftIDs []uuid.UUID) (*BulkSendResult, error) {
	result := &BulkSendResult{}
	for _, id := range draftIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		draft, err := s.Send(ctx, id)
		if err != nil {
			result.Failed++
			continue
		}
		switch draft.Status {
		case domain.DraftSent:
			result.Sent++
		case domain.DraftScheduled:
			result.Scheduled++
		case domain.DraftQuotaExceeded:
			result.QuotaExceeded++
		}
	}
	return result, nil
}

// ProcessDueScheduled retries every scheduled draft whose ScheduledAt has
// passed. Called from the worker tick.
func (s *Sender) ProcessDueScheduled(ctx context.Context, userID int) (*BulkSendResult, error) {
	due, err := s.store.ListDueScheduledDrafts(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(due))
	for i, d := range due {
		ids[i] = d.ID
	}
	return s.SendBulk(ctx, ids)
}
