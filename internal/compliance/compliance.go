// Package compliance issues and processes unsubscribe tokens and gates
// drafting and sending on the contact's consent state. Token validity
// depends on issuance and contact state only; a token is not consumed by
// use, so repeated clicks stay idempotent.
package compliance

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/lifecycle"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

const tokenPrefix = "unsub"

// Store is the persistence surface the gate needs.
type Store interface {
	SaveUnsubscribeToken(ctx context.Context, token *domain.UnsubscribeToken) error
	UnsubscribeTokenByValue(ctx context.Context, token string) (*domain.UnsubscribeToken, error)
	MarkTokenUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error
	ContactByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error)
	SetContactUnsubscribed(ctx context.Context, id uuid.UUID, from domain.ContactStatus, at time.Time) error
}

// Gate checks consent state and handles the unsubscribe flow.
type Gate struct {
	store   Store
	audit   *lifecycle.Recorder
	baseURL string
	now     func() time.Time
}

// NewGate creates a compliance gate. baseURL is the public unsubscribe
// endpoint prefix, e.g. "https://outreach.example.com/unsubscribe".
func NewGate(store Store, audit *lifecycle.Recorder, baseURL string) *Gate {
	return &Gate{
		store:   store,
		audit:   audit,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// SetClock overrides the gate's clock (for tests).
func (g *Gate) SetClock(now func() time.Time) { g.now = now }

// CheckContact reports whether the contact may be drafted for or sent to.
// Deleted wins over unsubscribed when both are set.
func (g *Gate) CheckContact(c *domain.Contact) error {
	if c.Deleted || c.Status == domain.ContactDeleted {
		return domain.ErrContactDeleted
	}
	if c.Unsubscribed || c.Status == domain.ContactUnsubscribed {
		return domain.ErrContactUnsubscribed
	}
	return nil
}

// GenerateToken builds an unsubscribe token value for a contact. The hash
// part is a sha256 over the contact id, a random salt and the issue time,
// so tokens are unguessable and unique per issuance.
func GenerateToken(contactID uuid.UUID, issuedAt time.Time) string {
	salt := make([]byte, 16)
	rand.Read(salt)

	h := sha256.New()
	h.Write([]byte(contactID.String()))
	h.Write(salt)
	h.Write([]byte(issuedAt.UTC().Format(time.RFC3339Nano)))

	return fmt.Sprintf("%s_%s_%s", tokenPrefix, contactID, hex.EncodeToString(h.Sum(nil)))
}

// ParseToken extracts the contact id from a token value without touching
// storage. Returns domain.ErrValidation for malformed tokens.
func ParseToken(token string) (uuid.UUID, error) {
	parts := strings.Split(token, "_")
	if len(parts) != 3 || parts[0] != tokenPrefix {
		return uuid.Nil, fmt.Errorf("malformed unsubscribe token: %w", domain.ErrValidation)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed unsubscribe token: %w", domain.ErrValidation)
	}
	if len(parts[2]) != sha256.Size*2 {
		return uuid.Nil, fmt.Errorf("malformed unsubscribe token: %w", domain.ErrValidation)
	}
	if _, err := hex.DecodeString(parts[2]); err != nil {
		return uuid.Nil, fmt.Errorf("malformed unsubscribe token: %w", domain.ErrValidation)
	}
	return id, nil
}

// IssueToken generates and persists a new unsubscribe token for a contact.
func (g *Gate) IssueToken(ctx context.Context, contactID uuid.UUID) (*domain.UnsubscribeToken, error) {
	now := g.now().UTC()
	token := &domain.UnsubscribeToken{
		ID:        uuid.New(),
		ContactID: contactID,
		Token:     GenerateToken(contactID, now),
		CreatedAt: now,
	}
	if err := g.store.SaveUnsubscribeToken(ctx, token); err != nil {
		return nil, fmt.Errorf("issuing unsubscribe token: %w", err)
	}
	return token, nil
}

// URLFor returns the public unsubscribe link for a token value. The token
// rides in the query string, matching the GET /unsubscribe endpoint.
func (g *Gate) URLFor(token string) string {
	return g.baseURL + "?token=" + url.QueryEscape(token)
}

// ValidateToken resolves a token value to its contact. The token must have
// been issued; a syntactically valid but unknown token is rejected.
func (g *Gate) ValidateToken(ctx context.Context, value string) (*domain.UnsubscribeToken, *domain.Contact, error) {
	contactID, err := ParseToken(value)
	if err != nil {
		return nil, nil, err
	}
	token, err := g.store.UnsubscribeTokenByValue(ctx, value)
	if err != nil {
		return nil, nil, err
	}
	if token.ContactID != contactID {
		return nil, nil, fmt.Errorf("token contact mismatch: %w", domain.ErrValidation)
	}
	contact, err := g.store.ContactByID(ctx, contactID)
	if err != nil {
		return nil, nil, err
	}
	return token, contact, nil
}

// ProcessToken unsubscribes the contact a token belongs to. Processing is
// idempotent: a contact that already unsubscribed stays unsubscribed and
// the call succeeds. Deleted contacts reject the token.
func (g *Gate) ProcessToken(ctx context.Context, value string) (*domain.Contact, error) {
	token, contact, err := g.ValidateToken(ctx, value)
	if err != nil {
		return nil, err
	}

	if contact.Deleted || contact.Status == domain.ContactDeleted {
		return nil, domain.ErrContactDeleted
	}
	if contact.Unsubscribed || contact.Status == domain.ContactUnsubscribed {
		return contact, nil
	}

	from := contact.Status
	if err := lifecycle.GuardContact(from, domain.ContactUnsubscribed); err != nil {
		return nil, err
	}

	now := g.now().UTC()
	if err := g.store.SetContactUnsubscribed(ctx, contact.ID, from, now); err != nil {
		return nil, fmt.Errorf("unsubscribing contact: %w", err)
	}
	if !token.Used {
		if err := g.store.MarkTokenUsed(ctx, token.ID, now); err != nil {
			return nil, fmt.Errorf("marking token used: %w", err)
		}
	}

	if g.audit != nil {
		if err := g.audit.ContactTransition(ctx, contact.ID, from, domain.ContactUnsubscribed, "unsubscribe", "recipient", "via unsubscribe token"); err != nil {
			return nil, err
		}
	}

	contact.Status = domain.ContactUnsubscribed
	contact.Unsubscribed = true
	contact.UnsubscribedAt = &now
	logger.Info("contact unsubscribed", "contact_id", contact.ID.String())
	return contact, nil
}
