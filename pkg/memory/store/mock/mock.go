package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantdesk/agentmem/pkg/errors"
	"github.com/quantdesk/agentmem/pkg/memory"
)

// MockStore is an in-memory implementation of the memory.Store interface
// used for testing and development.
type MockStore struct {
	// records holds each agent's memories in insertion order
	records map[string][]memory.Record

	// forcedErr, when set, is returned by every operation
	forcedErr error

	// mutex for safe concurrent access
	mutex sync.RWMutex
}

// NewMockStore creates a new instance of the MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		records: make(map[string][]memory.Record),
	}
}

// ForceError makes every subsequent operation fail with err; pass nil to
// restore normal behavior.
func (m *MockStore) ForceError(err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.forcedErr = err
}

// Insert implements the memory.Store interface.
func (m *MockStore) Insert(_ context.Context, record memory.Record) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.forcedErr != nil {
		return "", m.forcedErr
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	m.records[record.AgentName] = append(m.records[record.AgentName], record)
	return record.ID, nil
}

// Recent implements the memory.Store interface.
func (m *MockStore) Recent(_ context.Context, agentName string, limit int) ([]memory.Record, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.forcedErr != nil {
		return nil, m.forcedErr
	}

	all := m.records[agentName]
	out := make([]memory.Record, len(all))
	copy(out, all)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// UpdateResult implements the memory.Store interface.
func (m *MockStore) UpdateResult(_ context.Context, agentName, id, result string, returns *float64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.forcedErr != nil {
		return m.forcedErr
	}

	for i, record := range m.records[agentName] {
		if record.ID == id {
			m.records[agentName][i].Result = result
			m.records[agentName][i].Returns = returns
			m.records[agentName][i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return errors.ErrNotFound
}

// Stats implements the memory.Store interface.
func (m *MockStore) Stats(_ context.Context, agentName string) (memory.Stats, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.forcedErr != nil {
		return memory.Stats{}, m.forcedErr
	}

	var stats memory.Stats
	var sum float64
	var withReturns int64

	for _, record := range m.records[agentName] {
		stats.TotalMemories++
		if record.Returns != nil {
			withReturns++
			sum += *record.Returns
			if *record.Returns > 0 {
				stats.PositiveDecisions++
			}
		}
	}
	if withReturns > 0 {
		stats.AverageReturns = sum / float64(withReturns)
	}
	return stats, nil
}

// DeleteAgent implements the memory.Store interface.
func (m *MockStore) DeleteAgent(_ context.Context, agentName string) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.forcedErr != nil {
		return 0, m.forcedErr
	}

	deleted := int64(len(m.records[agentName]))
	delete(m.records, agentName)
	return deleted, nil
}
