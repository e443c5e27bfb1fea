package enrichment

import (
	"context"
	"sync"
)

// MemoryRepository keeps records in process memory
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[Key]Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: map[Key]Record{}}
}

func (m *MemoryRepository) Get(ctx context.Context, key Key) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[key]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryRepository) FindAll(ctx context.Context, keys []Key) (map[Key]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[Key]Record, len(keys))
	for _, k := range keys {
		if r, ok := m.records[k]; ok {
			out[k] = r.Clone()
		}
	}
	return out, nil
}

func (m *MemoryRepository) Save(ctx context.Context, record Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[record.Key].Version != record.Version {
		return Record{}, ErrVersionConflict
	}
	record.Version++
	m.records[record.Key] = record.Clone()
	return record, nil
}

func (m *MemoryRepository) Delete(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}
