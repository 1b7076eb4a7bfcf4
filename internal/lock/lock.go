// Package lock serializes writers that share a key, such as concurrent
// saves of the budget for one (user, category, month, year).
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotObtained is returned when a lock could not be taken in time.
var ErrNotObtained = errors.New("lock not obtained")

// UnlockFunc releases a held lock.
type UnlockFunc func(ctx context.Context) error

// Locker hands out exclusive locks per key.
type Locker interface {
	Lock(ctx context.Context, key string) (UnlockFunc, error)
}

// Memory is an in-process Locker. Entries are reference counted and dropped
// once nobody holds or waits on them.
type Memory struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

func NewMemory() *Memory {
	return &Memory{locks: make(map[string]*entry)}
}

func (m *Memory) Lock(ctx context.Context, key string) (UnlockFunc, error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e)
		return nil, ErrNotObtained
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-e.ch
			m.release(key, e)
		})
		return nil
	}, nil
}

func (m *Memory) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

// held reports the number of keys currently tracked.
func (m *Memory) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
