package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/applyflow/applyflow/internal/lease"
	"github.com/applyflow/applyflow/internal/model"
)

// Leaser is an in-process lease manager, valid when a single process runs the engine.
type Leaser struct {
	mu     sync.Mutex
	owners map[string]*memoryLease
}

var _ lease.Leaser = (*Leaser)(nil)

// NewLeaser creates a new in-process leaser.
func NewLeaser() *Leaser {
	return &Leaser{owners: map[string]*memoryLease{}}
}

// Acquire acquires the lease of a key.
func (l *Leaser) Acquire(ctx context.Context, key string) (lease.Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.owners[key]; ok {
		return nil, fmt.Errorf("key %s: %w", key, model.ErrLeaseHeld)
	}

	ls := &memoryLease{key: key, leaser: l, lost: make(chan struct{})}
	l.owners[key] = ls
	return ls, nil
}

func (l *Leaser) release(ls *memoryLease) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.owners[ls.key] == ls {
		delete(l.owners, ls.key)
	}
}

type memoryLease struct {
	key    string
	leaser *Leaser
	lost   chan struct{}
	once   sync.Once
}

func (m *memoryLease) Key() string           { return m.key }
func (m *memoryLease) Lost() <-chan struct{} { return m.lost }

func (m *memoryLease) Release(ctx context.Context) error {
	m.once.Do(func() { m.leaser.release(m) })
	return nil
}
