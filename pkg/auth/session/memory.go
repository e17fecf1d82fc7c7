// Package session provides session storage and lifecycle management for
// the GitHub App integration.
package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with a process-local map. Sessions held
// here do not survive a restart and are invisible to other replicas; use
// the Redis store when running more than one instance. Records are copied
// on the way in and out so the map never aliases caller memory.
type MemoryStore struct {
	log logrus.FieldLogger

	mu      sync.RWMutex
	records map[string]*Record // session ID -> record
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(log logrus.FieldLogger) *MemoryStore {
	return &MemoryStore{
		log:     log.WithField("component", "memory_store"),
		records: make(map[string]*Record, 1000),
	}
}

// Put writes a record unconditionally.
func (m *MemoryStore) Put(_ context.Context, record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *record
	m.records[record.ID] = &cp

	return nil
}

// PutIfAbsent writes a record only if no live record exists under its ID.
// The check and the write happen under one lock acquisition.
func (m *MemoryStore) PutIfAbsent(_ context.Context, record *Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[record.ID]; ok && !existing.IsExpired() {
		return false, nil
	}

	cp := *record
	m.records[record.ID] = &cp

	return true, nil
}

// Get retrieves the live record for an ID, removing it when expired.
func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	record, ok := m.records[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}

	if record.IsExpired() {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have
		// refreshed the ID since the read.
		if current, ok := m.records[id]; ok && current.IsExpired() {
			delete(m.records, id)
		}
		m.mu.Unlock()

		return nil, ErrSessionNotFound
	}

	cp := *record

	return &cp, nil
}

// Delete removes the entry for an ID, reporting whether a live record was
// removed.
func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return false, nil
	}

	delete(m.records, id)

	return !record.IsExpired(), nil
}

// List returns every stored record, expired records included.
func (m *MemoryStore) List(_ context.Context) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*Record, 0, len(m.records))

	for _, record := range m.records {
		cp := *record
		records = append(records, &cp)
	}

	return records, nil
}

// Ping always succeeds; the map is as reachable as the process itself.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}
