package domain

import (
	"time"

	"github.com/google/uuid"
)

// Operation is a priced AI operation kind recorded in the cost ledger.
type Operation string

const (
	OpEnrichment          Operation = "enrichment"
	OpEmbedding           Operation = "embedding"
	OpDraft               Operation = "draft"
	OpReplyClassification Operation = "reply_classification"
)

// CostLogEntry is an append-only record of a single priced operation.
// Entries are never mutated or deleted.
type CostLogEntry struct {
	ID         uuid.UUID  `json:"id"`
	UserID     int        `json:"user_id"`
	Operation  Operation  `json:"operation"`
	Model      string     `json:"model"`
	TokensUsed int        `json:"tokens_used"`
	Cost       float64    `json:"cost"`
	ContactID  *uuid.UUID `json:"contact_id,omitempty"`
	DraftID    *uuid.UUID `json:"draft_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// QuotaUsageEntry is the per-day send counter for one sender identity.
// The day boundary is UTC midnight; rollover is logical, historical days
// are retained.
type QuotaUsageEntry struct {
	ID         uuid.UUID `json:"id"`
	UserID     int       `json:"user_id"`
	Day        time.Time `json:"day"`
	EmailsSent int       `json:"emails_sent"`
	QuotaLimit int       `json:"quota_limit"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UnsubscribeToken belongs to one contact. Validity depends on issuance and
// contact state, not on consumption.
type UnsubscribeToken struct {
	ID        uuid.UUID  `json:"id"`
	ContactID uuid.UUID  `json:"contact_id"`
	Token     string     `json:"token"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// AuditLogEntry records one accepted state transition. The audit log is
// append-only; every component that mutates lifecycle state writes exactly
// one entry per transition.
type AuditLogEntry struct {
	ID         uuid.UUID `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	OldStatus  string    `json:"old_status"`
	NewStatus  string    `json:"new_status"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Entity type names used in audit entries.
const (
	EntityContact = "contact"
	EntityDraft   = "email_draft"
)
