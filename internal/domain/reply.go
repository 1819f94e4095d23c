package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReplyIntent is the classified intent of an inbound reply.
type ReplyIntent string

const (
	IntentInterested  ReplyIntent = "interested"
	IntentMaybe       ReplyIntent = "maybe"
	IntentDecline     ReplyIntent = "decline"
	IntentAutoReply   ReplyIntent = "auto_reply"
	IntentUnsubscribe ReplyIntent = "unsubscribe"
	IntentUnknown     ReplyIntent = "unknown"
)

// Reply is an inbound message answering exactly one sent draft, resolved by
// thread id. Multiple replies per draft are allowed, ordered by receipt.
type Reply struct {
	ID      uuid.UUID `json:"id"`
	DraftID uuid.UUID `json:"draft_id"`

	FromEmail    string   `json:"from_email"`
	CCRecipients []string `json:"cc_recipients,omitempty"`
	Body         string   `json:"body"`

	Intent     ReplyIntent `json:"intent"`
	Confidence float64     `json:"confidence"`

	// AvailabilityText holds meeting availability extracted from
	// interested replies, when any was found.
	AvailabilityText string `json:"availability_text,omitempty"`

	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
