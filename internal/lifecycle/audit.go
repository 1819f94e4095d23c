package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
)

// AuditSink receives audit entries. The postgres store implements it; tests
// use an in-memory sink.
type AuditSink interface {
	AppendAudit(ctx context.Context, entry *domain.AuditLogEntry) error
}

// Recorder writes exactly one audit entry per accepted transition. All
// workflow services share one Recorder.
type Recorder struct {
	sink AuditSink
	now  func() time.Time
}

// NewRecorder creates a Recorder on top of the given sink.
func NewRecorder(sink AuditSink) *Recorder {
	return &Recorder{sink: sink, now: time.Now}
}

// SetClock overrides the recorder's clock (for tests).
func (r *Recorder) SetClock(now func() time.Time) { r.now = now }

// ContactTransition records an accepted contact status change.
func (r *Recorder) ContactTransition(ctx context.Context, id uuid.UUID, from, to domain.ContactStatus, action, actor, details string) error {
	return r.append(ctx, domain.EntityContact, id, string(from), string(to), action, actor, details)
}

// DraftTransition records an accepted draft status change.
func (r *Recorder) DraftTransition(ctx context.Context, id uuid.UUID, from, to domain.DraftStatus, action, actor, details string) error {
	return r.append(ctx, domain.EntityDraft, id, string(from), string(to), action, actor, details)
}

func (r *Recorder) append(ctx context.Context, entityType string, id uuid.UUID, old, new, action, actor, details string) error {
	return r.sink.AppendAudit(ctx, &domain.AuditLogEntry{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   id,
		OldStatus:  old,
		NewStatus:  new,
		Action:     action,
		Actor:      actor,
		Details:    details,
		CreatedAt:  r.now().UTC(),
	})
}
