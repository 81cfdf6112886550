package mock

import (
	"context"
	"errors"
	"sync"
)

// ErrEmbeddingFailed is returned when the provider is configured to fail.
var ErrEmbeddingFailed = errors.New("mock embedding failure")

// MockProvider implements the embedding.Provider interface with canned vectors.
type MockProvider struct {
	// cannedVectors maps text to predetermined vectors
	cannedVectors map[string][]float32

	// defaultVector is returned when no matching canned vector is found
	defaultVector []float32

	// dimensions is the advertised fixed vector length
	dimensions int

	// shouldError indicates if the provider should return errors
	shouldError bool

	// mutex protects the map from concurrent access
	mutex sync.RWMutex

	// embedCalls records texts passed to Embed
	embedCalls []string
}

// MockOption is a function that configures a MockProvider.
type MockOption func(*MockProvider)

// WithVector sets a canned vector for a specific text.
func WithVector(text string, vec []float32) MockOption {
	return func(m *MockProvider) {
		m.cannedVectors[text] = vec
	}
}

// WithDefaultVector sets the vector returned when no canned match exists.
func WithDefaultVector(vec []float32) MockOption {
	return func(m *MockProvider) {
		m.defaultVector = vec
	}
}

// WithShouldError configures whether the provider returns errors.
func WithShouldError(shouldErr bool) MockOption {
	return func(m *MockProvider) {
		m.shouldError = shouldErr
	}
}

// NewMockProvider creates a new MockProvider with the given options.
func NewMockProvider(dimensions int, opts ...MockOption) *MockProvider {
	m := &MockProvider{
		cannedVectors: make(map[string][]float32),
		dimensions:    dimensions,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.defaultVector == nil {
		m.defaultVector = make([]float32, dimensions)
	}
	return m
}

// Embed implements the embedding.Provider interface.
func (m *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	m.mutex.Lock()
	m.embedCalls = append(m.embedCalls, text)
	m.mutex.Unlock()

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.shouldError {
		return nil, ErrEmbeddingFailed
	}
	if vec, ok := m.cannedVectors[text]; ok {
		return vec, nil
	}
	return m.defaultVector, nil
}

// Dimensions implements the embedding.Provider interface.
func (m *MockProvider) Dimensions() int {
	return m.dimensions
}

// SetShouldError flips failure injection at runtime.
func (m *MockProvider) SetShouldError(shouldErr bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.shouldError = shouldErr
}

// EmbedCalls returns the texts passed to Embed, in order.
func (m *MockProvider) EmbedCalls() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	calls := make([]string, len(m.embedCalls))
	copy(calls, m.embedCalls)
	return calls
}
