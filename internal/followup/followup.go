// Package followup generates follow-up drafts for sent emails that never
// got a reply. Follow-ups form a chain through OriginDraftID; the chain
// advances one draft at a time and stops permanently once the recipient
// declines anywhere in it.
package followup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/osteele/liquid"

	"github.com/ignite/outreach-engine/internal/compliance"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/drafting"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	// ListFollowupCandidates returns sent drafts with SentAt at or before
	// cutoff and FollowupSequence below maxSeq.
	ListFollowupCandidates(ctx context.Context, userID int, cutoff time.Time, maxSeq int) ([]*domain.EmailDraft, error)
	HasReply(ctx context.Context, draftID uuid.UUID) (bool, error)
	// ChainDrafts returns every draft in the chain containing draftID,
	// including the root.
	ChainDrafts(ctx context.Context, draftID uuid.UUID) ([]*domain.EmailDraft, error)
	HasDeclineInChain(ctx context.Context, draftID uuid.UUID) (bool, error)
	ContactByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error)
	CreateDraft(ctx context.Context, d *domain.EmailDraft) error
}

const firstFollowupBody = `Hi {{name}},

I wanted to follow up on my previous email about {{topic}}.

Would you have 15 minutes this week to discuss?

Best regards,
{{sender_name}}

---
Original message:
{{original_excerpt}}`

const laterFollowupBody = `Hi {{name}},

I know you're busy, so I'll keep this brief.

I'd love to share how {{topic}} could benefit {{company}}.

If you're not interested, just let me know and I won't follow up again.

Best,
{{sender_name}}`

// Scheduler finds drafts due for a follow-up and emits the next draft of
// each chain.
type Scheduler struct {
	store        Store
	gate         *compliance.Gate
	engine       *liquid.Engine
	fromEmail    string
	senderName   string
	userID       int
	followupDays int
	maxFollowups int
	now          func() time.Time
}

// NewScheduler creates a follow-up scheduler. followupDays and maxFollowups
// come from the workflow config.
func NewScheduler(store Store, gate *compliance.Gate, fromEmail, senderName string, userID, followupDays, maxFollowups int) *Scheduler {
	return &Scheduler{
		store:        store,
		gate:         gate,
		engine:       liquid.NewEngine(),
		fromEmail:    fromEmail,
		senderName:   senderName,
		userID:       userID,
		followupDays: followupDays,
		maxFollowups: maxFollowups,
		now:          time.Now,
	}
}

// SetClock overrides the scheduler's clock (for tests).
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Run scans for due follow-ups and generates at most one new draft per
// chain. Per-draft failures are logged and skipped.
func (s *Scheduler) Run(ctx context.Context) ([]*domain.EmailDraft, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.followupDays)
	candidates, err := s.store.ListFollowupCandidates(ctx, s.userID, cutoff, s.maxFollowups)
	if err != nil {
		return nil, fmt.Errorf("listing follow-up candidates: %w", err)
	}

	var created []*domain.EmailDraft
	for _, origin := range candidates {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		due, contact, err := s.shouldFollowUp(ctx, origin)
		if err != nil {
			logger.Error("follow-up check failed", "draft_id", origin.ID.String(), "error", err.Error())
			continue
		}
		if !due {
			continue
		}
		draft, err := s.CreateFollowup(ctx, origin, contact)
		if err != nil {
			logger.Error("follow-up generation failed", "draft_id", origin.ID.String(), "error", err.Error())
			continue
		}
		created = append(created, draft)
	}

	if len(created) > 0 {
		logger.Info("follow-ups generated", "count", len(created))
	}
	return created, nil
}

// shouldFollowUp applies every trigger condition for one sent draft.
func (s *Scheduler) shouldFollowUp(ctx context.Context, origin *domain.EmailDraft) (bool, *domain.Contact, error) {
	if origin.Status != domain.DraftSent || origin.SentAt == nil {
		return false, nil, nil
	}
	if s.now().UTC().Sub(*origin.SentAt) < time.Duration(s.followupDays)*24*time.Hour {
		return false, nil, nil
	}
	if origin.FollowupSequence >= s.maxFollowups {
		return false, nil, nil
	}

	replied, err := s.store.HasReply(ctx, origin.ID)
	if err != nil {
		return false, nil, err
	}
	if replied {
		return false, nil, nil
	}

	contact, err := s.store.ContactByID(ctx, origin.ContactID)
	if err != nil {
		return false, nil, err
	}
	if contact.DoNotFollowup {
		return false, nil, nil
	}
	if err := s.gate.CheckContact(contact); err != nil {
		return false, nil, nil
	}

	chain, err := s.store.ChainDrafts(ctx, origin.ID)
	if err != nil {
		return false, nil, err
	}
	for _, d := range chain {
		if d.Unresolved() {
			return false, nil, nil
		}
	}

	declined, err := s.store.HasDeclineInChain(ctx, origin.ID)
	if err != nil {
		return false, nil, err
	}
	if declined {
		return false, nil, nil
	}

	return true, contact, nil
}

// CreateFollowup emits the next draft in a chain: sequence parent+1, same
// thread, pending approval.
func (s *Scheduler) CreateFollowup(ctx context.Context, origin *domain.EmailDraft, contact *domain.Contact) (*domain.EmailDraft, error) {
	seq := origin.FollowupSequence + 1

	tmpl := firstFollowupBody
	if seq > 1 {
		tmpl = laterFollowupBody
	}

	vars := drafting.TemplateVars(contact)
	vars["topic"] = strings.TrimPrefix(origin.Subject, "Re: ")
	vars["sender_name"] = s.senderName
	vars["original_excerpt"] = excerpt(drafting.StripFooter(origin.Body), 200)

	body, err := s.render(tmpl, vars)
	if err != nil {
		return nil, err
	}

	token, err := s.gate.IssueToken(ctx, contact.ID)
	if err != nil {
		return nil, err
	}
	unsubURL := s.gate.URLFor(token.Token)
	body += "\n\n---\nTo unsubscribe, click: " + unsubURL

	subject := origin.Subject
	if !strings.HasPrefix(subject, "Re: ") {
		subject = "Re: " + subject
	}

	now := s.now().UTC()
	draft := &domain.EmailDraft{
		ID:               uuid.New(),
		ContactID:        contact.ID,
		UserID:           s.userID,
		ToEmail:          contact.Email,
		FromEmail:        s.fromEmail,
		Subject:          subject,
		Body:             body,
		Status:           domain.DraftPendingApproval,
		ThreadID:         origin.ThreadID,
		UnsubscribeToken: token.Token,
		UnsubscribeURL:   unsubURL,
		OriginDraftID:    &origin.ID,
		FollowupSequence: seq,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("persisting follow-up draft: %w", err)
	}

	logger.Info("follow-up drafted", "origin_id", origin.ID.String(), "sequence", seq)
	return draft, nil
}

// render expands a follow-up template against the chain's variables.
func (s *Scheduler) render(tmpl string, vars map[string]interface{}) (string, error) {
	out, err := s.engine.ParseAndRenderString(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("rendering follow-up template: %w", err)
	}
	return out, nil
}

// excerpt truncates text to n characters with an ellipsis.
func excerpt(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n] + "..."
}
