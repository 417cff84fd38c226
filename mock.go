package prompta

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockTransport simulates the completion API for tests and examples.
// It answers every request with a fixed content until made unavailable.
type MockTransport struct {
	content   string
	available bool
	mu        sync.Mutex
	requests  []CompletionRequest
}

// NewMockTransport creates a transport that always answers with content.
func NewMockTransport(content string) *MockTransport {
	return &MockTransport{
		content:   content,
		available: true,
	}
}

// Complete records req and returns the configured content.
func (m *MockTransport) Complete(_ context.Context, req CompletionRequest) (*Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, cloneRequest(req))
	if !m.available {
		return nil, &CompletionError{
			Message:    "mock transport is unavailable",
			Type:       "server_error",
			StatusCode: 503,
		}
	}
	return MockCompletion(req.Model, m.content), nil
}

// SetAvailable sets the availability status (for testing failures).
func (m *MockTransport) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// Requests returns a copy of every request received.
func (m *MockTransport) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	requests := make([]CompletionRequest, len(m.requests))
	copy(requests, m.requests)
	return requests
}

// NewMockTransportWithCallback creates a transport that delegates to callback.
func NewMockTransportWithCallback(callback func(req CompletionRequest) (string, error)) Transport {
	return &mockTransportCallback{callback: callback}
}

type mockTransportCallback struct {
	callback func(CompletionRequest) (string, error)
}

func (m *mockTransportCallback) Complete(_ context.Context, req CompletionRequest) (*Completion, error) {
	content, err := m.callback(req)
	if err != nil {
		return nil, err
	}
	return MockCompletion(req.Model, content), nil
}

// MockCompletion wraps content in a single-choice completion.
func MockCompletion(model, content string) *Completion {
	now := time.Now()
	return &Completion{
		ID:      fmt.Sprintf("chatcmpl-mock-%d", now.UnixNano()),
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   model,
		Usage: TokenUsage{
			PromptTokens:     100,
			CompletionTokens: 50,
			TotalTokens:      150,
		},
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: RoleAssistant, Content: content},
			FinishReason: "stop",
		}},
	}
}

func cloneRequest(req CompletionRequest) CompletionRequest {
	messages := make([]Message, len(req.Messages))
	copy(messages, req.Messages)
	req.Messages = messages
	return req
}
