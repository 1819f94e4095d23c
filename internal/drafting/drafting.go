// Package drafting creates outreach email drafts, either from a liquid
// template or through the generation collaborator. Every draft starts in
// pending_approval and carries its own unsubscribe token and footer.
package drafting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/osteele/liquid"

	"github.com/ignite/outreach-engine/internal/budget"
	"github.com/ignite/outreach-engine/internal/compliance"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Template is a reusable email template with liquid placeholders like
// {{name}} and {{company}}.
type Template struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Generator produces a personalized subject and body when no template is
// given. Implementations report the tokens consumed for cost tracking.
type Generator interface {
	GenerateDraft(ctx context.Context, contact *domain.Contact, maxWords int) (subject, body string, tokens int, err error)
}

// Store is the persistence surface drafting needs.
type Store interface {
	CreateDraft(ctx context.Context, d *domain.EmailDraft) error
}

// Drafter creates drafts for contacts.
type Drafter struct {
	store     Store
	gate      *compliance.Gate
	ledger    *budget.Ledger
	generator Generator
	engine    *liquid.Engine
	fromEmail string
	model     string
	userID    int
	maxWords  int
	now       func() time.Time
}

// NewDrafter creates a drafter. generator may be nil when only template
// drafting is used.
func NewDrafter(store Store, gate *compliance.Gate, ledger *budget.Ledger, generator Generator, fromEmail, model string, userID int) *Drafter {
	return &Drafter{
		store:     store,
		gate:      gate,
		ledger:    ledger,
		generator: generator,
		engine:    liquid.NewEngine(),
		fromEmail: fromEmail,
		model:     model,
		userID:    userID,
		maxWords:  150,
		now:       time.Now,
	}
}

// SetClock overrides the drafter's clock (for tests).
func (d *Drafter) SetClock(now func() time.Time) { d.now = now }

// TemplateVars builds the binding map for a contact. Missing fields fall
// back to neutral phrasing so rendered text never shows blanks mid-sentence.
func TemplateVars(c *domain.Contact) map[string]interface{} {
	name := c.Name
	if name == "" {
		name = "there"
	}
	company := c.Company
	if company == "" {
		company = "your organization"
	}
	industry := c.Industry
	if industry == "" {
		industry = "your industry"
	}
	painpoint := c.Painpoint
	if painpoint == "" {
		painpoint = "industry challenges"
	}
	return map[string]interface{}{
		"name":      name,
		"email":     c.Email,
		"company":   company,
		"industry":  industry,
		"title":     c.Title,
		"painpoint": painpoint,
	}
}

// Render expands a liquid template string against a contact.
func (d *Drafter) Render(tmpl string, c *domain.Contact) (string, error) {
	out, err := d.engine.ParseAndRenderString(tmpl, TemplateVars(c))
	if err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return out, nil
}

// CreateDraft builds and persists a draft for a contact. With a template
// the text is rendered locally; without one the generator writes it and
// the cost is recorded. Unsubscribed and deleted contacts are rejected
// before any text is produced.
func (d *Drafter) CreateDraft(ctx context.Context, contact *domain.Contact, tmpl *Template) (*domain.EmailDraft, error) {
	if err := d.gate.CheckContact(contact); err != nil {
		return nil, err
	}

	var subject, body string
	var tokens int
	var err error

	switch {
	case tmpl != nil:
		subject, err = d.Render(tmpl.Subject, contact)
		if err != nil {
			return nil, err
		}
		body, err = d.Render(tmpl.Body, contact)
		if err != nil {
			return nil, err
		}
	case d.generator != nil:
		subject, body, tokens, err = d.generator.GenerateDraft(ctx, contact, d.maxWords)
		if err != nil {
			return nil, fmt.Errorf("generating draft: %w", err)
		}
		if subject == "" {
			subject = fallbackSubject(contact)
		}
	default:
		return nil, fmt.Errorf("no template and no generator configured: %w", domain.ErrValidation)
	}

	token, err := d.gate.IssueToken(ctx, contact.ID)
	if err != nil {
		return nil, err
	}
	unsubURL := d.gate.URLFor(token.Token)
	body += "\n\n---\nTo unsubscribe, click: " + unsubURL

	now := d.now().UTC()
	draft := &domain.EmailDraft{
		ID:               uuid.New(),
		ContactID:        contact.ID,
		UserID:           d.userID,
		ToEmail:          contact.Email,
		FromEmail:        d.fromEmail,
		Subject:          subject,
		Body:             body,
		Status:           domain.DraftPendingApproval,
		UnsubscribeToken: token.Token,
		UnsubscribeURL:   unsubURL,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := d.store.CreateDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("persisting draft: %w", err)
	}

	if tokens > 0 && d.ledger != nil {
		cost := budget.OperationCost(domain.OpDraft, d.model, tokens)
		if _, err := d.ledger.Record(ctx, domain.OpDraft, d.model, tokens, cost, &contact.ID, &draft.ID); err != nil {
			return nil, err
		}
	}

	logger.Info("draft created", "draft_id", draft.ID.String(), "contact_id", contact.ID.String())
	return draft, nil
}

// BulkResult summarizes a bulk drafting run.
type BulkResult struct {
	Drafts []*domain.EmailDraft `json:"drafts"`
	Failed int                  `json:"failed"`
}

// CreateDraftsBulk drafts for many contacts. Per-contact failures are
// logged and counted; the rest of the batch continues.
func (d *Drafter) CreateDraftsBulk(ctx context.Context, contacts []*domain.Contact, tmpl *Template) (*BulkResult, error) {
	result := &BulkResult{}
	for _, contact := range contacts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		draft, err := d.CreateDraft(ctx, contact, tmpl)
		if err != nil {
			logger.Error("drafting failed", "contact_id", contact.ID.String(), "error", err.Error())
			result.Failed++
			continue
		}
		result.Drafts = append(result.Drafts, draft)
	}
	return result, nil
}

func fallbackSubject(c *domain.Contact) string {
	if c.Company != "" {
		return "Quick question about " + c.Company
	}
	return "Quick question about your work"
}

// StripFooter removes the unsubscribe footer from a body, for places that
// re-render or quote the original text.
func StripFooter(body string) string {
	if i := strings.Index(body, "\n\n---\nTo unsubscribe"); i >= 0 {
		return body[:i]
	}
	return body
}
