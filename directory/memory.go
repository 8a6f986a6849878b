// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package directory

import (
	"sync"
)

// Memory is a process-local Store for single-node deployments and tests.
type Memory[V any] struct {
	mu      sync.Mutex
	entries map[string]V
	locks   map[string]*sync.Mutex
}

// NewMemory creates an empty in-memory store.
func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{
		entries: make(map[string]V),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Lock returns the lock for key, creating it on first use. Locks are never
// discarded: a key that was ever locked keeps its lock for the lifetime of
// the store, so that two callers racing for the same key always contend on
// the same mutex.
func (m *Memory[V]) Lock(key string) sync.Locker {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Get returns the value filed under key.
func (m *Memory[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

// Put files a value under key.
func (m *Memory[V]) Put(key string, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = v
}

// Remove deletes the key.
func (m *Memory[V]) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len reports the number of entries in the store.
func (m *Memory[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
