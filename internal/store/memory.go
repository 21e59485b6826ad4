package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process JobStore used when no table is configured.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]map[string]JobRecord
}

var _ JobStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]map[string]JobRecord)}
}

func (m *MemoryStore) PutJob(_ context.Context, rec *JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.jobs[rec.Identity]
	if !ok {
		byID = make(map[string]JobRecord)
		m.jobs[rec.Identity] = byID
	}
	byID[rec.ID] = *rec
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, identity, jobID string) (*JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[identity][jobID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) ListJobs(_ context.Context, identity string, limit int) ([]*JobRecord, error) {
	m.mu.Lock()
	records := make([]*JobRecord, 0, len(m.jobs[identity]))
	for _, rec := range m.jobs[identity] {
		rec := rec
		records = append(records, &rec)
	}
	m.mu.Unlock()
	return newestFirst(records, limit), nil
}
