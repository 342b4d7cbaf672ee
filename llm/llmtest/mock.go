// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/KamdynS/weather-agents/llm"
)

// MockClient replays queued responses in order. When the queue is empty it
// answers with Fallback (or "Default mock response"). Safe for concurrent use.
type MockClient struct {
	mu        sync.Mutex
	responses []llm.Response
	calls     []llm.ChatRequest
	next      int
	err       error

	// Fallback is returned once all scripted responses are consumed.
	Fallback string
	// Respond, when set, computes the response from the request instead of
	// the queue.
	Respond func(req *llm.ChatRequest) (*llm.Response, error)
}

// NewMockClient creates an empty mock.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// AddResponse queues a plain assistant message.
func (m *MockClient) AddResponse(content string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, llm.Response{
		Content:  content,
		Role:     "assistant",
		Model:    "mock-model",
		Provider: llm.ProviderOpenAI,
	})
	return m
}

// AddResponseWithToolCalls queues an assistant message requesting tools.
func (m *MockClient) AddResponseWithToolCalls(content string, calls ...llm.ToolCall) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, llm.Response{
		Content:      content,
		Role:         "assistant",
		Model:        "mock-model",
		Provider:     llm.ProviderOpenAI,
		ToolCalls:    calls,
		FinishReason: "tool_calls",
	})
	return m
}

// SetError makes every call fail with err.
func (m *MockClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Chat implements llm.Client.
func (m *MockClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, cloneRequest(req))
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return nil, err
	}
	respond := m.Respond
	if respond != nil {
		m.mu.Unlock()
		return respond(req)
	}
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.next >= len(m.responses) {
		content := m.Fallback
		if content == "" {
			content = "Default mock response"
		}
		return &llm.Response{Content: content, Role: "assistant", Model: "mock-model", Provider: llm.ProviderOpenAI}, nil
	}
	resp := m.responses[m.next]
	m.next++
	return &resp, nil
}

// Model implements llm.Client.
func (m *MockClient) Model() string { return "mock-model" }

// Provider implements llm.Client.
func (m *MockClient) Provider() llm.Provider { return llm.ProviderOpenAI }

// Calls returns copies of every request received.
func (m *MockClient) Calls() []llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.ChatRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Chat calls.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func cloneRequest(req *llm.ChatRequest) llm.ChatRequest {
	if req == nil {
		return llm.ChatRequest{}
	}
	c := *req
	c.Messages = append([]llm.Message(nil), req.Messages...)
	return c
}

// ToolCall builds a function tool call for scripting.
func ToolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: llm.Function{Name: name, Arguments: args}}
}

var _ llm.Client = (*MockClient)(nil)
