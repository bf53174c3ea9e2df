package generator

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/namespace"
	"github.com/hupe1980/actionmesh/state"
)

// MockCall records one Chat invocation of a MockClient.
type MockCall struct {
	Options   core.ChatOptions
	Functions []namespace.FunctionDefinition
}

// MockClient is a lightweight in-memory Client useful for tests and examples.
// Responses are returned in the order they were added; once exhausted Chat
// echoes the prompt.
type MockClient struct {
	mu        sync.Mutex
	registry  *namespace.Registry
	features  core.SupportedFeatures
	responses []mockReply
	calls     []MockCall
	embedding core.Embeddings
}

type mockReply struct {
	resp core.ChatResponse
	err  error
}

// NewMockClient constructs a MockClient supporting system prompts and tools.
// The registry (may be nil) is used to record the exposed functions.
func NewMockClient(reg *namespace.Registry) *MockClient {
	return &MockClient{
		registry: reg,
		features: core.SupportedFeatures{SystemPrompt: true, Tools: true},
	}
}

// SetFeatures overrides the probe result.
func (m *MockClient) SetFeatures(f core.SupportedFeatures) { m.features = f }

// SetEmbedding sets the vector returned by Embed.
func (m *MockClient) SetEmbedding(e core.Embeddings) { m.embedding = e }

// AddResponse queues a canned response.
func (m *MockClient) AddResponse(resp core.ChatResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockReply{resp: resp})
}

// AddError queues a failure.
func (m *MockClient) AddError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockReply{err: err})
}

// Calls returns the recorded Chat invocations.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CheckSupportedFeatures implements Client.
func (m *MockClient) CheckSupportedFeatures(context.Context) (core.SupportedFeatures, error) {
	return m.features, nil
}

// Chat implements Client.
func (m *MockClient) Chat(ctx context.Context, st *state.State, opts core.ChatOptions) (core.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return core.ChatResponse{}, err
	}
	call := MockCall{Options: opts, Functions: Functions(st, m.registry)}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if len(m.responses) == 0 {
		return core.ChatResponse{Content: fmt.Sprintf("Mock response to: %s", opts.Prompt)}, nil
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next.resp, next.err
}

// Embed implements Client.
func (m *MockClient) Embed(context.Context, string) (core.Embeddings, error) {
	if m.embedding == nil {
		return nil, core.ErrNotImplemented
	}
	return m.embedding, nil
}
