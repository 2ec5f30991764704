package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedResponse defines one queued response for the scripted provider.
type ScriptedResponse struct {
	Content   string
	ToolCalls []ToolCall
	Citations []Citation
	Err       error
}

// ScriptedProvider returns a pre-defined sequence of responses and captures
// every request it receives. Useful for testing multi-turn loops.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	requests  []GenerateRequest

	// Repeat, when set, replays the final response forever instead of
	// exhausting the queue.
	Repeat bool

	// CallCount tracks how many times Generate has been called.
	CallCount int
}

// NewScripted creates a provider that plays back the given responses in order.
func NewScripted(responses ...ScriptedResponse) *ScriptedProvider {
	return &ScriptedProvider{responses: responses}
}

// Generate pops the next scripted response.
func (s *ScriptedProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.requests = append(s.requests, req)

	if len(s.responses) == 0 {
		return nil, errors.New("scripted provider: no more responses available")
	}

	next := s.responses[0]
	if !s.Repeat || len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}

	if next.Err != nil {
		return nil, next.Err
	}
	return &GenerateResult{
		Content:   next.Content,
		ToolCalls: next.ToolCalls,
		Citations: next.Citations,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// Embed returns a fixed small vector.
func (s *ScriptedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

// AddResponse appends a response to the queue.
func (s *ScriptedProvider) AddResponse(resp ScriptedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
}

// Requests returns a copy of the captured requests.
func (s *ScriptedProvider) Requests() []GenerateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]GenerateRequest(nil), s.requests...)
}
