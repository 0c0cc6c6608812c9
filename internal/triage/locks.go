package triage

import (
	"sync"

	"github.com/google/uuid"
)

// rowLocks serializes writers per report id within this process. The store's
// conditional updates cover writers in other processes.
type rowLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*rowLock
}

type rowLock struct {
	mu   sync.Mutex
	refs int
}

func newRowLocks() *rowLocks {
	return &rowLocks{locks: make(map[uuid.UUID]*rowLock)}
}

func (l *rowLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	rl, ok := l.locks[id]
	if !ok {
		rl = &rowLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
