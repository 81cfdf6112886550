// Package mock provides an in-memory pricing.Oracle for tests.
package mock

import (
	"context"
	"sync"

	"github.com/quantdesk/agentmem/pkg/errors"
)

// MockOracle serves canned prices keyed by "market:symbol".
type MockOracle struct {
	prices map[string]float64

	// forcedErr, when set, is returned by every lookup
	forcedErr error

	// lookupCalls records the keys passed to CurrentPrice
	lookupCalls []string

	mutex sync.RWMutex
}

// NewMockOracle creates an oracle with no prices; every lookup misses until
// SetPrice is called.
func NewMockOracle() *MockOracle {
	return &MockOracle{
		prices: make(map[string]float64),
	}
}

// SetPrice registers a price for a market and symbol.
func (m *MockOracle) SetPrice(market, symbol string, price float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.prices[market+":"+symbol] = price
}

// RemovePrice deletes a registered price so later lookups miss.
func (m *MockOracle) RemovePrice(market, symbol string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.prices, market+":"+symbol)
}

// ForceError makes every subsequent lookup fail with err; pass nil to
// restore normal behavior.
func (m *MockOracle) ForceError(err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.forcedErr = err
}

// LookupCalls returns the "market:symbol" keys queried so far, in order.
func (m *MockOracle) LookupCalls() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	calls := make([]string, len(m.lookupCalls))
	copy(calls, m.lookupCalls)
	return calls
}

// CurrentPrice implements the pricing.Oracle interface.
func (m *MockOracle) CurrentPrice(_ context.Context, market, symbol string) (float64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := market + ":" + symbol
	m.lookupCalls = append(m.lookupCalls, key)

	if m.forcedErr != nil {
		return 0, m.forcedErr
	}
	price, ok := m.prices[key]
	if !ok {
		return 0, errors.Wrap(errors.ErrPriceUnavailable, "no price for %s", key)
	}
	return price, nil
}
