// Package sequence issues per-key request sequence numbers so that, of
// several overlapping aggregations for the same key, only the result of the
// most recently issued request is applied.
package sequence

import (
	"context"
	"fmt"
	"sync"
)

// Sequencer issues strictly increasing numbers per key, starting at 1.
type Sequencer interface {
	Next(ctx context.Context, key string) (uint64, error)
	// Latest returns the last number issued for key, or 0 if none.
	Latest(ctx context.Context, key string) (uint64, error)
}

// Memory is an in-process Sequencer.
type Memory struct {
	mu   sync.Mutex
	last map[string]uint64
}

func NewMemory() *Memory {
	return &Memory{last: make(map[string]uint64)}
}

func (m *Memory) Next(ctx context.Context, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[key]++
	return m.last[key], nil
}

func (m *Memory) Latest(ctx context.Context, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("latest sequence: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[key], nil
}
