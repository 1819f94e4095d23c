// Package domain defines the core entities of the outreach engine and the
// typed error taxonomy shared by all workflow components. Entities here are
// plain data carriers; all policy lives in the service packages.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContactStatus is the lifecycle state of a contact.
type ContactStatus string

const (
	ContactImported         ContactStatus = "imported"
	ContactEnriched         ContactStatus = "enriched"
	ContactEnrichmentFailed ContactStatus = "enrichment_failed"
	ContactRateLimited      ContactStatus = "rate_limited"
	ContactEmailSent        ContactStatus = "email_sent"
	ContactReplied          ContactStatus = "replied"
	ContactUnsubscribed     ContactStatus = "unsubscribed"
	ContactDeleted          ContactStatus = "deleted"
)

// Contact represents a person to reach out to. Identity is the normalized
// email address, unique within the non-deleted set across all campaigns.
type Contact struct {
	ID       uuid.UUID `json:"id"`
	UserID   int       `json:"user_id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Industry string    `json:"industry"`

	// Enrichment fields
	Title          string  `json:"title,omitempty"`
	Company        string  `json:"company,omitempty"`
	Painpoint      string  `json:"painpoint,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`

	Status       ContactStatus `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	RetryCount   int           `json:"retry_count"`

	Timezone       string     `json:"timezone"`
	Unsubscribed   bool       `json:"unsubscribed"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`
	DoNotFollowup  bool       `json:"do_not_followup"`
	Deleted        bool       `json:"deleted"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`

	// Embedding is an opaque vector blob owned exclusively by the contact.
	// The clustering collaborator produces and consumes it; the workflow
	// core never inspects its contents.
	Embedding []byte `json:"-"`

	// ClusterLabel is an opaque grouping assigned by the clustering
	// collaborator. It is not identity.
	ClusterLabel string `json:"cluster_label,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email address. All identity
// comparisons in the engine go through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Contactable reports whether new drafts may target this contact.
func (c *Contact) Contactable() bool {
	return !c.Unsubscribed && !c.Deleted
}
