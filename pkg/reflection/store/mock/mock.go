// Package mock provides an in-memory reflection.Store for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantdesk/agentmem/pkg/errors"
	"github.com/quantdesk/agentmem/pkg/reflection"
)

// MockStore is an in-memory implementation of the reflection.Store interface.
type MockStore struct {
	// records holds all reflection records keyed by ID
	records map[string]reflection.Record

	// order preserves insertion order for deterministic ClaimDue results
	order []string

	// forcedErr, when set, is returned by every operation
	forcedErr error

	mutex sync.RWMutex
}

// NewMockStore creates a new instance of the MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		records: make(map[string]reflection.Record),
	}
}

// ForceError makes every subsequent operation fail with err; pass nil to
// restore normal behavior.
func (m *MockStore) ForceError(err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.forcedErr = err
}

// Get returns a stored record by ID for test assertions.
func (m *MockStore) Get(id string) (reflection.Record, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	record, ok := m.records[id]
	return record, ok
}

// Insert implements the reflection.Store interface.
func (m *MockStore) Insert(_ context.Context, record reflection.Record) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.forcedErr != nil {
		return "", m.forcedErr
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Status == "" {
		record.Status = reflection.StatusPending
	}
	if record.AnalysisDate.IsZero() {
		record.AnalysisDate = time.Now().UTC()
	}

	m.records[record.ID] = record
	m.order = append(m.order, record.ID)
	return record.ID, nil
}

// ClaimDue implements the reflection.Store interface.
func (m *MockStore) ClaimDue(_ context.Context, now time.Time) ([]reflection.Record, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.forcedErr != nil {
		return nil, m.forcedErr
	}

	var claimed []reflection.Record
	for _, id := range m.order {
		record := m.records[id]
		if record.Status == reflection.StatusPending && !record.TargetCheckDate.After(now) {
			record.Status = reflection.StatusInProgress
			m.records[id] = record
			claimed = append(claimed, record)
		}
	}
	return claimed, nil
}

// Complete implements the reflection.Store interface.
func (m *MockStore) Complete(_ context.Context, id string, finalPrice, actualReturn float64, checkResult string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.forcedErr != nil {
		return m.forcedErr
	}

	record, ok := m.records[id]
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "reflection record %s", id)
	}
	if record.Status == reflection.StatusCompleted {
		return errors.Wrap(errors.ErrAlreadyCompleted, "reflection record %s", id)
	}

	record.Status = reflection.StatusCompleted
	record.FinalPrice = &finalPrice
	record.ActualReturn = &actualReturn
	record.CheckResult = checkResult
	m.records[id] = record
	return nil
}

// Release implements the reflection.Store interface.
func (m *MockStore) Release(_ context.Context, id string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.forcedErr != nil {
		return m.forcedErr
	}

	record, ok := m.records[id]
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "reflection record %s", id)
	}
	if record.Status == reflection.StatusCompleted {
		return errors.Wrap(errors.ErrAlreadyCompleted, "reflection record %s", id)
	}

	record.Status = reflection.StatusPending
	m.records[id] = record
	return nil
}

// MarkFailed implements the reflection.Store interface.
func (m *MockStore) MarkFailed(_ context.Context, id, checkResult string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.forcedErr != nil {
		return m.forcedErr
	}

	record, ok := m.records[id]
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "reflection record %s", id)
	}
	if record.Status == reflection.StatusCompleted {
		return errors.Wrap(errors.ErrAlreadyCompleted, "reflection record %s", id)
	}

	record.Status = reflection.StatusFailed
	record.CheckResult = checkResult
	m.records[id] = record
	return nil
}

// PendingCount implements the reflection.Store interface.
func (m *MockStore) PendingCount(_ context.Context) (int64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.forcedErr != nil {
		return 0, m.forcedErr
	}

	var count int64
	for _, record := range m.records {
		if record.Status == reflection.StatusPending {
			count++
		}
	}
	return count, nil
}

// Stats implements the reflection.Store interface.
func (m *MockStore) Stats(_ context.Context) (reflection.Stats, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.forcedErr != nil {
		return reflection.Stats{}, m.forcedErr
	}

	var stats reflection.Stats
	var sum float64
	var withReturn int64

	for _, record := range m.records {
		stats.TotalRecords++
		switch record.Status {
		case reflection.StatusPending:
			stats.PendingRecords++
		case reflection.StatusCompleted:
			stats.CompletedRecords++
			if record.ActualReturn != nil {
				withReturn++
				sum += *record.ActualReturn
			}
		}
	}
	if withReturn > 0 {
		stats.AverageReturn = sum / float64(withReturn)
	}
	return stats, nil
}
