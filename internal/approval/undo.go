package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/domain"
)

// UndoWindow tracks bulk approval batches in redis. The record's TTL is the
// undo window; once it lapses the batch can no longer be reverted.
type UndoWindow struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewUndoWindow creates an undo window tracker with the given TTL.
func NewUndoWindow(rdb *redis.Client, ttl time.Duration) *UndoWindow {
	return &UndoWindow{rdb: rdb, ttl: ttl}
}

func batchKey(batchID uuid.UUID) string {
	return fmt.Sprintf("approval:batch:%s", batchID)
}

// Record stores the draft ids of a freshly approved batch.
func (u *UndoWindow) Record(ctx context.Context, batchID uuid.UUID, draftIDs []uuid.UUID) error {
	payload, err := json.Marshal(draftIDs)
	if err != nil {
		return fmt.Errorf("encoding batch record: %w", err)
	}
	if err := u.rdb.Set(ctx, batchKey(batchID), payload, u.ttl).Err(); err != nil {
		return fmt.Errorf("recording approval batch: %w", err)
	}
	return nil
}

// Fetch returns the draft ids of a batch while its undo window is open.
// Returns domain.ErrUndoWindowExpired once the record has lapsed.
func (u *UndoWindow) Fetch(ctx context.Context, batchID uuid.UUID) ([]uuid.UUID, error) {
	payload, err := u.rdb.Get(ctx, batchKey(batchID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrUndoWindowExpired
		}
		return nil, fmt.Errorf("fetching approval batch: %w", err)
	}

	var draftIDs []uuid.UUID
	if err := json.Unmarshal(payload, &draftIDs); err != nil {
		return nil, fmt.Errorf("decoding batch record: %w", err)
	}
	return draftIDs, nil
}

// Clear removes a batch record after a successful undo.
func (u *UndoWindow) Clear(ctx context.Context, batchID uuid.UUID) error {
	return u.rdb.Del(ctx, batchKey(batchID)).Err()
}
