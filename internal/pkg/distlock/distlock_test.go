package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

func TestRedisLockIsExclusive(t *testing.T) {
	rdb, _ := newTestClient(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "worker:tick", time.Minute)
	b := NewRedisLock(rdb, "worker:tick", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "a second worker must not take a held lease")

	require.NoError(t, a.Release(ctx))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "released lease is free for the next worker")
}

func TestRedisLockReleaseOnlyFreesOwnLease(t *testing.T) {
	rdb, mr := newTestClient(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "worker:tick", time.Minute)
	b := NewRedisLock(rdb, "worker:tick", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Crash scenario: a's lease lapses and b takes over.
	mr.FastForward(2 * time.Minute)
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// The slow worker's release must not free b's lease.
	require.NoError(t, a.Release(ctx))
	ok, err = NewRedisLock(rdb, "worker:tick", time.Minute).Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLockExpiresWithTTL(t *testing.T) {
	rdb, mr := newTestClient(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "worker:tick", time.Minute)
	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = NewRedisLock(rdb, "worker:tick", time.Minute).Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "a crashed worker's lease frees itself via TTL")
}
