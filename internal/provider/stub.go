package provider

import (
	"context"
	"sync"
)

// StubProvider replays scripted responses and records every request.
// Set Err to make every Chat call fail.
type StubProvider struct {
	mu        sync.Mutex
	Responses []Response
	Err       error
	EmbedErr  error
	Requests  [][]Message
	Options   []Options
}

func NewStubProvider() *StubProvider {
	return &StubProvider{
		Responses: []Response{
			{
				Content: "Hello! I remember what we talked about.",
				Usage:   Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
			},
		},
	}
}

func (m *StubProvider) Chat(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	recorded := make([]Message, len(messages))
	copy(recorded, messages)
	m.Requests = append(m.Requests, recorded)
	m.Options = append(m.Options, opts)

	if m.Err != nil {
		return nil, m.Err
	}

	if len(m.Responses) == 0 {
		return &Response{Content: "ok", Usage: Usage{}}, nil
	}

	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return &resp, nil
}

// Calls returns how many Chat requests were made.
func (m *StubProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// LastRequest returns the most recent Chat request, or nil.
func (m *StubProvider) LastRequest() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return nil
	}
	return m.Requests[len(m.Requests)-1]
}

func (m *StubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *StubProvider) Name() string {
	return "stub"
}
