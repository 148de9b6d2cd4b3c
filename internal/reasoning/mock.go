package reasoning

import (
	"context"
	"sync"
)

// MockClient is a scriptable Client for tests and dry runs. By default it
// answers every request with a short acknowledgement; set Handler to shape
// answers per request. Requests are recorded for assertions.
type MockClient struct {
	Handler func(ctx context.Context, req *Request) (*Response, error)

	mu       sync.Mutex
	requests []*Request
}

// NewMockClient builds a mock that acknowledges every request.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ask records the request and runs the handler, or returns the default
// acknowledgement when no handler is set.
func (m *MockClient) Ask(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	reqCopy := *req
	m.requests = append(m.requests, &reqCopy)
	handler := m.Handler
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}

	return &Response{Content: "ok"}, nil
}

// Requests returns a copy of every request seen so far, in order.
func (m *MockClient) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request, or nil if none were made.
func (m *MockClient) LastRequest() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}
