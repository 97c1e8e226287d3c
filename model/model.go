package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Request is the normalized input for a single text generation call.
type Request struct {
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int64   `json:"max_tokens,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the generated text plus optional accounting data.
type Response struct {
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "offline", "mock"
}

// Model is the inference service consumed by planners, deciders, behavior
// loops and bus peers.
type Model interface {
	Generate(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Text is a convenience wrapper returning only the generated text.
func Text(ctx context.Context, m Model, prompt string, temperature float64, maxTokens int64) (string, error) {
	resp, err := m.Generate(ctx, Request{Prompt: prompt, Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp.Text), nil
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses are matched first by exact prompt, then by the first registered
// substring rule, then fall back to a queue of scripted replies.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	contains  []rule
	script    []scripted
	calls     []Request
}

type rule struct{ substr, response string }

type scripted struct {
	text string
	err  error
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an exact prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// AddContains registers a completion for any prompt containing substr.
func (m *MockModel) AddContains(substr, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contains = append(m.contains, rule{substr: substr, response: response})
}

// Enqueue appends scripted replies consumed in order by prompts that match no rule.
func (m *MockModel) Enqueue(texts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range texts {
		m.script = append(m.script, scripted{text: t})
	}
}

// EnqueueError appends a scripted failure.
func (m *MockModel) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{err: err})
}

// Calls returns a copy of all requests received.
func (m *MockModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.calls...)
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if r, ok := m.responses[req.Prompt]; ok {
		return Response{Text: r, FinishReason: "stop"}, nil
	}

	for _, c := range m.contains {
		if strings.Contains(req.Prompt, c.substr) {
			return Response{Text: c.response, FinishReason: "stop"}, nil
		}
	}

	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]

		if next.err != nil {
			return Response{}, next.err
		}

		return Response{Text: next.text, FinishReason: "stop"}, nil
	}

	return Response{Text: fmt.Sprintf("Mock response to: %s", req.Prompt), FinishReason: "stop"}, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
