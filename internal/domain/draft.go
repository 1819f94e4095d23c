package domain

import (
	"time"

	"github.com/google/uuid"
)

// DraftStatus is the lifecycle state of an email draft.
type DraftStatus string

const (
	DraftPendingApproval DraftStatus = "pending_approval"
	DraftApproved        DraftStatus = "approved"
	DraftRejected        DraftStatus = "rejected"
	DraftSent            DraftStatus = "sent"
	DraftSendFailed      DraftStatus = "send_failed"
	DraftScheduled       DraftStatus = "scheduled"
	DraftQuotaExceeded   DraftStatus = "quota_exceeded"
)

// Terminal reports whether a draft in this status can never transition again.
// A rejected or sent draft cannot be resurrected; a new draft must be created.
func (s DraftStatus) Terminal() bool {
	return s == DraftSent || s == DraftRejected
}

// EmailDraft is a single outreach email owned by exactly one contact.
// Follow-ups form a chain through OriginDraftID; FollowupSequence is 0 for
// originals and parent+1 for each follow-up.
type EmailDraft struct {
	ID        uuid.UUID `json:"id"`
	ContactID uuid.UUID `json:"contact_id"`
	UserID    int       `json:"user_id"`

	ToEmail   string `json:"to_email"`
	FromEmail string `json:"from_email"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`

	Status          DraftStatus `json:"status"`
	ApprovedBy      string      `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time  `json:"approved_at,omitempty"`
	ApprovalNotes   string      `json:"approval_notes,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	CancelReason    string      `json:"cancel_reason,omitempty"`
	Edited          bool        `json:"edited"`

	MessageID   string     `json:"message_id,omitempty"`
	ThreadID    string     `json:"thread_id,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	UnsubscribeToken string `json:"unsubscribe_token,omitempty"`
	UnsubscribeURL   string `json:"unsubscribe_url,omitempty"`

	// OriginDraftID points at the draft this one follows up. It is a
	// same-contact relation, not an ownership edge: merging or erasing the
	// origin never blocks on it.
	OriginDraftID    *uuid.UUID `json:"origin_draft_id,omitempty"`
	FollowupSequence int        `json:"followup_sequence"`

	// BatchID groups drafts approved together so a bulk approval can be
	// undone as a unit.
	BatchID *uuid.UUID `json:"batch_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Unresolved reports whether the draft still blocks its chain: a pending or
// approved draft must be resolved before the next follow-up may be generated.
func (d *EmailDraft) Unresolved() bool {
	return d.Status == DraftPendingApproval || d.Status == DraftApproved
}
