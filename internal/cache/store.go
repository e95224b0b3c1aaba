// Package cache implements the local order cache: a persistent key-value
// store of order records that serves as the durable source of truth when
// the backend is unreachable.
//
// The cache is the join of every order this client has ever created or
// synced. It is NOT an authoritative view of a customer's history - orders
// placed elsewhere are invisible until an email-matching sync adopts them.
package cache

import "sync"

// Store is the minimal key-value contract the order cache is built on.
// Semantics mirror the browser storage the original client used: string
// keys, opaque byte values, full key enumeration, no transactions.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	Delete(key string) error
	Keys() []string
}

// Memory is an in-process Store. Used in tests and as the non-durable
// fallback when no cache path is configured.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}
