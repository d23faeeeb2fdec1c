package kv

import (
	"context"
	"sync"
	"unicode/utf8"
)

// Memory is an in-process Store that enumerates keys in insertion order.
// An optional quota bounds the total number of characters held in keys and values.
type Memory struct {
	mu    sync.RWMutex
	data  map[string]string
	order []string
	used  int
	quota int
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithQuota caps the store at chars characters of keys plus values.
// Zero or negative disables the cap.
func WithQuota(chars int) MemoryOption {
	return func(m *Memory) {
		m.quota = chars
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{data: make(map[string]string)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func entrySize(key, value string) int {
	return utf8.RuneCountInString(key) + utf8.RuneCountInString(value)
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, exists := m.data[key]
	used := m.used + entrySize(key, value)
	if exists {
		used -= entrySize(key, old)
	}
	if m.quota > 0 && used > m.quota {
		return &StorageError{Op: "set", Key: key, Err: ErrQuotaExceeded}
	}

	if !exists {
		m.order = append(m.order, key)
	}
	m.data[key] = value
	m.used = used
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.data[key]
	if !ok {
		return nil
	}
	delete(m.data, key)
	m.used -= entrySize(key, old)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, len(m.order))
	copy(keys, m.order)
	return keys, nil
}

func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data), nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
	m.order = nil
	m.used = 0
	return nil
}

// Used returns the number of characters currently stored.
func (m *Memory) Used() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}
