package suggest

import (
	"context"
	"sync"
)

// MockClient is a test double for the query-suggestion service.
type MockClient struct {
	err     error
	queries []string
	calls   int
	mu      sync.Mutex
}

// NewMockClient creates a mock client that returns no queries.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SetQueries configures the queries every Suggest call returns.
func (m *MockClient) SetQueries(queries ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = queries
}

// SetError makes every Suggest call fail with the given error.
func (m *MockClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Suggest was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Suggest returns the configured queries or error.
func (m *MockClient) Suggest(_ context.Context, _ TransactionSummary, _ *PartnerSummary, maxQueries int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil {
		return nil, m.err
	}
	if len(m.queries) > maxQueries && maxQueries > 0 {
		return m.queries[:maxQueries], nil
	}
	return m.queries, nil
}
