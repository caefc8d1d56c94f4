package payout

import (
	"context"
	"sync"
)

type Memory struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	notices []Notice
}

func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

func (m *Memory) Record(_ context.Context, n Notice) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.seen[n.MessageID]; dup {
		return false, nil
	}
	m.seen[n.MessageID] = struct{}{}
	m.notices = append(m.notices, n)
	return true, nil
}

func (m *Memory) List(_ context.Context) ([]Notice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notice(nil), m.notices...), nil
}
