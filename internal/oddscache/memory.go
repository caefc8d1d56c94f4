package oddscache

import (
	"context"
	"sync"
)

type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Set(_ context.Context, e Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[e.Key()]; ok && cur.UpdatedAt.After(e.UpdatedAt) {
		return false, nil
	}
	e.Odds = append([]float64(nil), e.Odds...)
	m.entries[e.Key()] = e
	return true, nil
}

func (m *Memory) Get(_ context.Context, node string, marketID uint64) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[Key(node, marketID)]
	if ok {
		e.Odds = append([]float64(nil), e.Odds...)
	}
	return e, ok, nil
}
