// Package slotlock serializes the booking write path per slot key.
package slotlock

import (
	"context"
	"sync"
)

// Memory is an in-process keyed lock. Entries are dropped once no caller holds or waits on them.
type Memory struct {
	mu    sync.Mutex
	slots map[string]*slotEntry
}

type slotEntry struct {
	ch   chan struct{}
	refs int
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string]*slotEntry)}
}

// Lock blocks until key is free or ctx is done.
func (m *Memory) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	entry, ok := m.slots[key]
	if !ok {
		entry = &slotEntry{ch: make(chan struct{}, 1)}
		m.slots[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			m.release(key, entry)
		})
	}, nil
}

func (m *Memory) release(key string, entry *slotEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.slots, key)
	}
}

func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
