package lock

import (
	"context"
	"sync"
	"time"

	importapp "github.com/erp/importer/internal/application/import"
	"github.com/erp/importer/internal/domain/shared"
)

type holder struct {
	token     uint64
	expiresAt time.Time
}

// InMemoryLock implements RunLock inside one process.
// This is suitable for single-instance deployments and testing.
type InMemoryLock struct {
	mu    sync.Mutex
	held  map[string]holder
	next  uint64
	clock func() time.Time
}

// NewInMemoryLock creates an empty in-memory lock
func NewInMemoryLock() *InMemoryLock {
	return &InMemoryLock{
		held:  make(map[string]holder),
		clock: time.Now,
	}
}

// TryAcquire takes key for ttl. An expired holder is replaced.
func (l *InMemoryLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if h, ok := l.held[key]; ok && now.Before(h.expiresAt) {
		return nil, shared.ErrConcurrentRun
	}

	l.next++
	token := l.next
	l.held[key] = holder{token: token, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if h, ok := l.held[key]; ok && h.token == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}

var _ importapp.RunLock = (*InMemoryLock)(nil)
