package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLockNotAcquired is returned by WithLock when all attempts fail.
var ErrLockNotAcquired = errors.New("system busy, please try again later (lock)")

type Locker interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}

// WithLock runs fn while holding key. It makes a few attempts before giving up.
func WithLock(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	value := uuid.New().String()

	acquired := false
	for i := 0; i < 3; i++ {
		ok, err := l.AcquireLock(ctx, key, value, ttl)
		if err != nil {
			return err
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	if !acquired {
		return ErrLockNotAcquired
	}
	defer l.ReleaseLock(context.WithoutCancel(ctx), key, value)

	return fn(ctx)
}

// MemoryLocker is an in-process Locker for tests and single-node tooling runs.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
}

type memoryLock struct {
	value     string
	expiresAt time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: map[string]memoryLock{}}
}

func (m *MemoryLocker) AcquireLock(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.locks[key]; ok && time.Now().Before(cur.expiresAt) {
		return false, nil
	}
	m.locks[key] = memoryLock{value: value, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (m *MemoryLocker) ReleaseLock(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.locks[key]; ok && cur.value == value {
		delete(m.locks, key)
	}
	return nil
}
