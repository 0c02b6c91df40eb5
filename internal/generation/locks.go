package generation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker hands out expiring tokens. cache.Locks implements it over Redis.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

// MemoryLocks is a process-local Locker.
type MemoryLocks struct {
	mu   sync.Mutex
	held map[string]heldLock
	now  func() time.Time
}

type heldLock struct {
	token   string
	expires time.Time
}

// NewMemoryLocks creates an empty lock set.
func NewMemoryLocks() *MemoryLocks {
	return &MemoryLocks{held: make(map[string]heldLock), now: time.Now}
}

func (l *MemoryLocks) Acquire(_ context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return "", nil
	}
	token := uuid.NewString()
	l.held[key] = heldLock{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (l *MemoryLocks) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.held[key]; ok && h.token == token {
		delete(l.held, key)
	}
	return nil
}
