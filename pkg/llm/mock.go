package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a testing implementation of Provider.
type MockProvider struct {
	Response     string
	Citations    []Citation
	Vector       []float32
	Err          error
	EmbedErr     error
	GenerateFunc func(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	mu            sync.Mutex
	generateCalls int
	embedCalls    int
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	m.mu.Lock()
	m.generateCalls++
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &GenerateResult{
		Content:   m.Response,
		Citations: m.Citations,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.embedCalls++
	m.mu.Unlock()

	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	if m.Vector != nil {
		return m.Vector, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// GenerateCalls returns how many times Generate was invoked.
func (m *MockProvider) GenerateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCalls
}

// EmbedCalls returns how many times Embed was invoked.
func (m *MockProvider) EmbedCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls
}

// FailingMockProvider always fails.
type FailingMockProvider struct {
	Err error
}

func (f *FailingMockProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if f.Err == nil {
		return nil, fmt.Errorf("mock error")
	}
	return nil, f.Err
}

func (f *FailingMockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.Err == nil {
		return nil, fmt.Errorf("mock error")
	}
	return nil, f.Err
}
