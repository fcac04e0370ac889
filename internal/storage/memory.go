package storage

import (
	"context"
	"sync"
)

type memKey struct {
	kind   Kind
	height int64
}

// Memory is an in-process Cache. It keeps encoded entries so callers never share payloads.
type Memory struct {
	mu      sync.RWMutex
	entries map[memKey][]byte
	latest  int64
	hasAny  bool
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[memKey][]byte)}
}

func (m *Memory) Get(_ context.Context, kind Kind, height int64, out interface{}) (bool, error) {
	m.mu.RLock()
	data, ok := m.entries[memKey{kind, height}]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if _, err := DecodeRecord(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) Save(_ context.Context, kind Kind, height int64, chainID string, v interface{}) error {
	data, err := EncodeRecord(chainID, v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memKey{kind, height}] = data
	if kind == KindBlock && (!m.hasAny || height > m.latest) {
		m.latest = height
		m.hasAny = true
	}
	return nil
}

func (m *Memory) LatestHeight(context.Context) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.hasAny, nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() error { return nil }
