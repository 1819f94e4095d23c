// Package replies routes inbound email back onto the workflow. A reply is
// resolved to its draft by thread id, persisted immediately with intent
// unknown, and classified afterwards; classification outcomes then drive
// contact status, follow-up cancellation and unsubscribes.
package replies

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/budget"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/lifecycle"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Classifier decides the intent of a reply body. Implementations report the
// tokens consumed for cost tracking.
type Classifier interface {
	ClassifyReply(ctx context.Context, body string) (intent domain.ReplyIntent, confidence float64, tokens int, err error)
}

// Store is the persistence surface reply routing needs.
type Store interface {
	DraftByThreadID(ctx context.Context, threadID string) (*domain.EmailDraft, error)
	DraftByID(ctx context.Context, id uuid.UUID) (*domain.EmailDraft, error)
	SaveReply(ctx context.Context, r *domain.Reply) error
	UpdateReply(ctx context.Context, r *domain.Reply) error
	ContactByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error)
	UpdateContactStatus(ctx context.Context, id uuid.UUID, from, to domain.ContactStatus) error
	SetContactUnsubscribed(ctx context.Context, id uuid.UUID, from domain.ContactStatus, at time.Time) error
	// ChainUnresolvedDrafts returns the pending or approved drafts in the
	// chain containing draftID.
	ChainUnresolvedDrafts(ctx context.Context, draftID uuid.UUID) ([]*domain.EmailDraft, error)
	UpdateDraftStatus(ctx context.Context, d *domain.EmailDraft, expected domain.DraftStatus) error
}

// Inbound is a raw inbound message from the mail provider.
type Inbound struct {
	ThreadID   string
	FromEmail  string
	CC         []string
	Body       string
	ReceivedAt time.Time
}

// Router receives and processes replies.
type Router struct {
	store      Store
	classifier Classifier
	ledger     *budget.Ledger
	audit      *lifecycle.Recorder
	model      string
	now        func() time.Time
}

// NewRouter creates a reply router. classifier and ledger may be nil;
// replies then stay at intent unknown until reprocessed.
func NewRouter(store Store, classifier Classifier, ledger *budget.Ledger, audit *lifecycle.Recorder, model string) *Router {
	return &Router{
		store:      store,
		classifier: classifier,
		ledger:     ledger,
		audit:      audit,
		model:      model,
		now:        time.Now,
	}
}

// SetClock overrides the router's clock (for tests).
func (r *Router) SetClock(now func() time.Time) { r.now = now }

// Receive resolves an inbound message to its draft and persists it with
// intent unknown. Self-replies (our own sender address echoing back) are
// discarded and return nil without error.
func (r *Router) Receive(ctx context.Context, in Inbound) (*domain.Reply, error) {
	draft, err := r.store.DraftByThreadID(ctx, in.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("resolving reply thread %s: %w", in.ThreadID, err)
	}

	if domain.NormalizeEmail(in.FromEmail) == domain.NormalizeEmail(draft.FromEmail) {
		logger.Debug("discarding self-reply", "thread_id", in.ThreadID)
		return nil, nil
	}

	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = r.now().UTC()
	}

	reply := &domain.Reply{
		ID:           uuid.New(),
		DraftID:      draft.ID,
		FromEmail:    domain.NormalizeEmail(in.FromEmail),
		CCRecipients: in.CC,
		Body:         StripHTML(in.Body),
		Intent:       domain.IntentUnknown,
		ReceivedAt:   receivedAt,
	}
	if err := r.store.SaveReply(ctx, reply); err != nil {
		return nil, fmt.Errorf("saving reply: %w", err)
	}

	logger.Info("reply received", "draft_id", draft.ID.String(), "thread_id", in.ThreadID)
	return reply, nil
}

// Process classifies a stored reply and applies the intent's side effects:
// interested marks the contact replied and extracts availability; decline
// and unsubscribe cancel the chain's open follow-ups; unsubscribe also
// unsubscribes the contact.
func (r *Router) Process(ctx context.Context, reply *domain.Reply) (*domain.Reply, error) {
	if r.classifier != nil {
		intent, confidence, tokens, err := r.classifier.ClassifyReply(ctx, reply.Body)
		if err != nil {
			logger.Error("reply classification failed", "reply_id", reply.ID.String(), "error", err.Error())
			intent, confidence = domain.IntentUnknown, 0
		}
		reply.Intent = intent
		reply.Confidence = confidence

		if tokens > 0 && r.ledger != nil {
			cost := budget.OperationCost(domain.OpReplyClassification, r.model, tokens)
			if _, err := r.ledger.Record(ctx, domain.OpReplyClassification, r.model, tokens, cost, nil, &reply.DraftID); err != nil {
				return nil, err
			}
		}
	}

	if reply.Intent == domain.IntentInterested {
		reply.AvailabilityText = ExtractAvailability(reply.Body)
	}

	now := r.now().UTC()
	reply.ProcessedAt = &now
	if err := r.store.UpdateReply(ctx, reply); err != nil {
		return nil, fmt.Errorf("updating reply: %w", err)
	}

	if err := r.applyIntent(ctx, reply); err != nil {
		return nil, err
	}

	logger.Info("reply processed", "reply_id", reply.ID.String(), "intent", string(reply.Intent))
	return reply, nil
}

func (r *Router) applyIntent(ctx context.Context, reply *domain.Reply) error {
	switch reply.Intent {
	case domain.IntentInterested:
		return r.markContactReplied(ctx, reply)
	case domain.IntentDecline:
		return r.cancelOpenFollowups(ctx, reply.DraftID, "recipient declined")
	case domain.IntentUnsubscribe:
		if err := r.cancelOpenFollowups(ctx, reply.DraftID, "recipient unsubscribed"); err != nil {
			return err
		}
		return r.unsubscribeContact(ctx, reply)
	}
	return nil
}

func (r *Router) markContactReplied(ctx context.Context, reply *domain.Reply) error {
	contact, err := r.contactForReply(ctx, reply)
	if err != nil {
		return err
	}
	if !lifecycle.CanTransitionContact(contact.Status, domain.ContactReplied) {
		return nil
	}
	if err := r.store.UpdateContactStatus(ctx, contact.ID, contact.Status, domain.ContactReplied); err != nil {
		return fmt.Errorf("marking contact replied: %w", err)
	}
	return r.audit.ContactTransition(ctx, contact.ID, contact.Status, domain.ContactReplied, "reply_interested", "system", "")
}

func (r *Router) unsubscribeContact(ctx context.Context, reply *domain.Reply) error {
	contact, err := r.contactForReply(ctx, reply)
	if err != nil {
		return err
	}
	if contact.Unsubscribed || contact.Status == domain.ContactUnsubscribed || contact.Status == domain.ContactDeleted {
		return nil
	}
	if err := r.store.SetContactUnsubscribed(ctx, contact.ID, contact.Status, r.now().UTC()); err != nil {
		return fmt.Errorf("unsubscribing contact from reply: %w", err)
	}
	return r.audit.ContactTransition(ctx, contact.ID, contact.Status, domain.ContactUnsubscribed, "unsubscribe", "recipient", "explicit unsubscribe reply")
}

func (r *Router) contactForReply(ctx context.Context, reply *domain.Reply) (*domain.Contact, error) {
	draft, err := r.store.DraftByID(ctx, reply.DraftID)
	if err != nil {
		return nil, err
	}
	return r.store.ContactByID(ctx, draft.ContactID)
}

// cancelOpenFollowups rejects every unresolved follow-up in the chain. A
// pending draft is rejected directly; an approved one is first reverted to
// pending so the rejection stays within the allowed transitions.
func (r *Router) cancelOpenFollowups(ctx context.Context, draftID uuid.UUID, reason string) error {
	open, err := r.store.ChainUnresolvedDrafts(ctx, draftID)
	if err != nil {
		return fmt.Errorf("listing open follow-ups: %w", err)
	}

	for _, d := range open {
		if d.Status == domain.DraftApproved {
			from := d.Status
			d.Status = domain.DraftPendingApproval
			d.CancelReason = reason
			if err := r.store.UpdateDraftStatus(ctx, d, from); err != nil {
				return fmt.Errorf("cancelling approved follow-up: %w", err)
			}
			if err := r.audit.DraftTransition(ctx, d.ID, from, domain.DraftPendingApproval, "cancel_approval", "system", reason); err != nil {
				return err
			}
		}

		from := d.Status
		d.Status = domain.DraftRejected
		d.RejectionReason = reason
		if err := r.store.UpdateDraftStatus(ctx, d, from); err != nil {
			return fmt.Errorf("rejecting follow-up: %w", err)
		}
		if err := r.audit.DraftTransition(ctx, d.ID, from, domain.DraftRejected, "reject", "system", reason); err != nil {
			return err
		}
		logger.Info("follow-up cancelled", "draft_id", d.ID.String(), "reason", reason)
	}
	return nil
}
