package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient implements Client for testing. Responses are returned in order;
// once exhausted the last response repeats. A nil Err and empty Responses
// yields a fixed placeholder answer.
type MockClient struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	calls     int
	requests  []CompletionRequest
}

// NewMockClient creates a mock client with scripted responses.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{Responses: responses}
}

func (m *MockClient) Model() string {
	return "mock"
}

// Complete returns the next scripted response.
func (m *MockClient) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	m.calls++

	if m.Err != nil {
		return nil, m.Err
	}

	content := "mock response"
	if len(m.Responses) > 0 {
		idx := m.calls - 1
		if idx >= len(m.Responses) {
			idx = len(m.Responses) - 1
		}
		content = m.Responses[idx]
	}

	return &CompletionResponse{
		Content:    content,
		StopReason: "stop",
		Usage: TokenUsage{
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		},
	}, nil
}

// Calls returns how many times Complete was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request, or an error when none was made.
func (m *MockClient) LastRequest() (CompletionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return CompletionRequest{}, fmt.Errorf("no requests recorded")
	}
	return m.requests[len(m.requests)-1], nil
}
