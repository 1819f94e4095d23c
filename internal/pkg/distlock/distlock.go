// Package distlock provides distributed locking for the worker tick so that
// follow-up scans and scheduled-send dispatch run on exactly one host at a
// time. Redis is the preferred backend; PostgreSQL advisory locks are the
// fallback when no Redis client is configured.
package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking. Implementations are
// safe for use from a single goroutine; concurrent use across goroutines
// requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// NewLock creates a distributed lock using the best available backend.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// RedisLock holds the tick lease as a SET NX key with a TTL, so a crashed
// worker frees the lease once the TTL lapses. The owner id stops one worker
// from releasing a lease a slower peer re-acquired in the meantime.
type RedisLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// releaseScript deletes the lease only while this instance still owns it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// NewRedisLock creates a Redis-backed lock under the outreach key namespace.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    "outreach:lock:" + key,
		owner:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire tries to take the lease without blocking.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Release frees the lease if this instance still owns it. Releasing a lease
// that expired or moved to another owner is a no-op.
func (l *RedisLock) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Result(); err != nil {
		return fmt.Errorf("releasing lock %s: %w", l.key, err)
	}
	return nil
}

// PGAdvisoryLock implements DistLock using pg_try_advisory_lock. The lock is
// session-scoped and released automatically if the connection drops.
type PGAdvisoryLock struct {
	db     *sql.DB
	key    string
	lockID int64
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		key:    key,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to take the advisory lock without blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	if err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		return false, fmt.Errorf("acquiring advisory lock %s: %w", l.key, err)
	}
	return acquired, nil
}

// Release frees the advisory lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID); err != nil {
		return fmt.Errorf("releasing advisory lock %s: %w", l.key, err)
	}
	return nil
}
