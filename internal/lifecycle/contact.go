// Package lifecycle defines the explicit state machines for contacts and
// email drafts. Every permitted transition is listed in an allow-list table;
// anything not in the table is rejected with InvalidStateTransitionError.
// Status is never inferred from ad hoc field checks.
package lifecycle

import (
	"github.com/ignite/outreach-engine/internal/domain"
)

// contactTransitions is the allow-list for contact status changes.
//
//	imported -> enriched | enrichment_failed | rate_limited
//	enrichment_failed -> enriched | rate_limited   (explicit retry)
//	rate_limited -> enriched | enrichment_failed   (bulk retry)
//	enriched -> email_sent
//	email_sent -> replied
//
// Unsubscribe is reachable from any non-deleted state and is irreversible
// inside the workflow. Soft delete is reachable from anywhere and freezes
// the contact: nothing transitions out of deleted.
var contactTransitions = map[domain.ContactStatus][]domain.ContactStatus{
	domain.ContactImported: {
		domain.ContactEnriched,
		domain.ContactEnrichmentFailed,
		domain.ContactRateLimited,
	},
	domain.ContactEnrichmentFailed: {
		domain.ContactEnriched,
		domain.ContactRateLimited,
	},
	domain.ContactRateLimited: {
		domain.ContactEnriched,
		domain.ContactEnrichmentFailed,
	},
	domain.ContactEnriched: {
		domain.ContactEmailSent,
	},
	domain.ContactEmailSent: {
		domain.ContactReplied,
	},
	domain.ContactReplied:      {},
	domain.ContactUnsubscribed: {},
	domain.ContactDeleted:      {},
}

// CanTransitionContact reports whether the contact status change is allowed.
func CanTransitionContact(from, to domain.ContactStatus) bool {
	if from == to {
		return false
	}
	// Deleted is frozen.
	if from == domain.ContactDeleted {
		return false
	}
	// Soft delete is always reachable.
	if to == domain.ContactDeleted {
		return true
	}
	// Unsubscribe is reachable from any non-deleted state.
	if to == domain.ContactUnsubscribed {
		return from != domain.ContactUnsubscribed
	}
	// Unsubscribed contacts accept no other transition.
	if from == domain.ContactUnsubscribed {
		return false
	}
	for _, allowed := range contactTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// GuardContact returns an InvalidStateTransitionError when the change is not
// in the allow-list, nil otherwise.
func GuardContact(from, to domain.ContactStatus) error {
	if !CanTransitionContact(from, to) {
		return &domain.InvalidStateTransitionError{
			Entity: domain.EntityContact,
			From:   string(from),
			To:     string(to),
		}
	}
	return nil
}
