package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLock_RunsAndReleases(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	ran := false
	err := WithLock(ctx, l, "lock:test", time.Minute, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	ok, err := l.AcquireLock(ctx, "lock:test", "other", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock should be free after WithLock returns")
}

func TestWithLock_HeldElsewhere(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	ok, err := l.AcquireLock(ctx, "lock:test", "holder", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = WithLock(ctx, l, "lock:test", time.Minute, func(ctx context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	assert.True(t, errors.Is(err, ErrLockNotAcquired))
}

func TestMemoryLocker_ReleaseRequiresOwner(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	ok, _ := l.AcquireLock(ctx, "k", "a", time.Minute)
	require.True(t, ok)

	require.NoError(t, l.ReleaseLock(ctx, "k", "b"))
	ok, _ = l.AcquireLock(ctx, "k", "c", time.Minute)
	assert.False(t, ok)

	require.NoError(t, l.ReleaseLock(ctx, "k", "a"))
	ok, _ = l.AcquireLock(ctx, "k", "c", time.Minute)
	assert.True(t, ok)
}
