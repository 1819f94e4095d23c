package lifecycle

import (
	"github.com/ignite/outreach-engine/internal/domain"
)

// draftTransitions is the allow-list for draft status changes.
//
//	pending_approval -> approved | rejected
//	approved -> sent | send_failed | scheduled | quota_exceeded
//	approved -> pending_approval          (cancel, bulk-approval undo)
//	scheduled -> sent | send_failed | quota_exceeded
//	quota_exceeded -> sent | send_failed  (retry after rollover)
//	send_failed -> pending_approval | approved
//
// sent and rejected are terminal: a new draft must be created to retry.
var draftTransitions = map[domain.DraftStatus][]domain.DraftStatus{
	domain.DraftPendingApproval: {
		domain.DraftApproved,
		domain.DraftRejected,
	},
	domain.DraftApproved: {
		domain.DraftSent,
		domain.DraftSendFailed,
		domain.DraftScheduled,
		domain.DraftQuotaExceeded,
		domain.DraftPendingApproval,
	},
	domain.DraftScheduled: {
		domain.DraftSent,
		domain.DraftSendFailed,
		domain.DraftQuotaExceeded,
	},
	domain.DraftQuotaExceeded: {
		domain.DraftSent,
		domain.DraftSendFailed,
	},
	domain.DraftSendFailed: {
		domain.DraftPendingApproval,
		domain.DraftApproved,
	},
	domain.DraftSent:     {},
	domain.DraftRejected: {},
}

// CanTransitionDraft reports whether the draft status change is allowed.
func CanTransitionDraft(from, to domain.DraftStatus) bool {
	if from == to {
		return false
	}
	for _, allowed := range draftTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// GuardDraft returns an InvalidStateTransitionError when the change is not
// in the allow-list, nil otherwise.
func GuardDraft(from, to domain.DraftStatus) error {
	if !CanTransitionDraft(from, to) {
		return &domain.InvalidStateTransitionError{
			Entity: domain.EntityDraft,
			From:   string(from),
			To:     string(to),
		}
	}
	return nil
}
