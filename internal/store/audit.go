package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
)

func (s *Store) AppendAudit(ctx context.Context, e *domain.AuditLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log
			(id, entity_type, entity_id, old_status, new_status, action, actor, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.EntityType, e.EntityID, e.OldStatus, e.NewStatus,
		e.Action, e.Actor, e.Details, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// AuditTrail returns the transition history for one entity, oldest first.
func (s *Store) AuditTrail(ctx context.Context, entityID uuid.UUID) ([]*domain.AuditLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, old_status, new_status, action, actor,
		       COALESCE(details,''), created_at
		FROM audit_log
		WHERE entity_id = $1
		ORDER BY created_at
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit trail: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditLogEntry
	for rows.Next() {
		e := &domain.AuditLogEntry{}
		if err := rows.Scan(
			&e.ID, &e.EntityType, &e.EntityID, &e.OldStatus, &e.NewStatus,
			&e.Action, &e.Actor, &e.Details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
