package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for policy gates and lookups. Gate violations are always
// surfaced immediately to the caller; none of them are retried internally.
var (
	// ErrNotFound is returned when an entity does not exist (or is soft
	// deleted and the query did not opt in to deleted rows).
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed input the caller can correct.
	ErrValidation = errors.New("validation failed")

	// ErrBudgetLimitReached stops a batch when the projected daily cost
	// would exceed the configured ceiling. Completed work is kept.
	ErrBudgetLimitReached = errors.New("daily budget limit reached")

	// ErrQuotaExceeded is returned when the daily send ceiling is exhausted.
	ErrQuotaExceeded = errors.New("daily send quota exceeded")

	// ErrDuplicateSend is returned when sending a draft that is already sent.
	ErrDuplicateSend = errors.New("draft already sent")

	// ErrDraftNotApproved is returned when sending a draft that has not
	// passed approval.
	ErrDraftNotApproved = errors.New("draft not approved")

	// ErrContactUnsubscribed blocks drafting and sending for an
	// unsubscribed contact. Not retryable inside the workflow.
	ErrContactUnsubscribed = errors.New("contact has unsubscribed")

	// ErrContactDeleted blocks drafting and sending for a soft-deleted
	// contact.
	ErrContactDeleted = errors.New("contact is deleted")

	// ErrEnrichmentFailed marks a terminal enrichment failure after the
	// retry cap is exhausted.
	ErrEnrichmentFailed = errors.New("enrichment failed")

	// ErrRateLimited marks a throttling response from a collaborator.
	// Contacts stopped by it are bulk-retryable separately from hard
	// failures.
	ErrRateLimited = errors.New("rate limited")

	// ErrUndoWindowExpired is returned when a bulk approval undo arrives
	// after the undo window has closed.
	ErrUndoWindowExpired = errors.New("undo window expired")

	// ErrDuplicateContact is returned when an import row matches an
	// existing non-deleted contact.
	ErrDuplicateContact = errors.New("contact already exists")
)

// InvalidStateTransitionError is returned for any transition attempt not in
// the entity's allow-list. It is always rejected, never retried.
type InvalidStateTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Entity, e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidStateTransitionError.
func IsInvalidTransition(err error) bool {
	var ist *InvalidStateTransitionError
	return errors.As(err, &ist)
}

// SpamScoreExceededError is returned when a draft's spam score is above the
// configured ceiling. The draft remains approved so it can be revised.
type SpamScoreExceededError struct {
	Score float64
	Limit float64
}

func (e *SpamScoreExceededError) Error() string {
	return fmt.Sprintf("spam score %.2f exceeds limit %.2f", e.Score, e.Limit)
}
