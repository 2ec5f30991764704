package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/axonrt/axon/pkg/errors"
)

// OllamaProvider implements the Provider interface against an Ollama
// server. One instance is bound to one chat model tier; the runtime wires
// a primary and a fallback instance through Fallback.
type OllamaProvider struct {
	baseURL    string
	model      string
	embedModel string
	client     *http.Client
}

// NewOllama creates an OllamaProvider bound to the given chat model.
func NewOllama(baseURL, model, embedModel string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	return &OllamaProvider{
		baseURL:    baseURL,
		model:      model,
		embedModel: embedModel,
		client:     &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Tools    []Tool         `json:"tools,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	EvalCount       int     `json:"eval_count"`
	PromptEvalCount int     `json:"prompt_eval_count"`
}

// Generate sends a chat request to Ollama and maps the response. The
// bound model is authoritative: req.Model is ignored so that a provider
// reached through a fallback chain always answers with its own tier.
// Ollama has no grounding capability, so citations are always empty.
func (p *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	oReq := ollamaChatRequest{
		Model:    p.model,
		Messages: req.Messages,
		Stream:   false,
		Tools:    req.Tools,
	}
	if req.Temperature != 0 {
		oReq.Options = map[string]any{"temperature": req.Temperature}
	}

	var oResp ollamaChatResponse
	if err := p.post(ctx, "/api/chat", oReq, &oResp); err != nil {
		return nil, err
	}

	return &GenerateResult{
		Content:   oResp.Message.Content,
		ToolCalls: oResp.Message.ToolCalls,
		Usage: Usage{
			PromptTokens:     oResp.PromptEvalCount,
			CompletionTokens: oResp.EvalCount,
			TotalTokens:      oResp.PromptEvalCount + oResp.EvalCount,
		},
	}, nil
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed converts a text string into a vector via the embeddings endpoint.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	req := ollamaEmbedRequest{Model: p.embedModel, Prompt: text}
	var resp ollamaEmbedResponse
	if err := p.post(ctx, "/api/embeddings", req, &resp); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

func (p *OllamaProvider) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return errors.New(errors.CodeLLMError, "ollama api call failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return errors.New(errors.CodeOverloaded, "ollama overloaded", nil).
			WithContext("status", resp.StatusCode).
			WithRecoverable(true)
	default:
		return errors.New(errors.CodeLLMError,
			fmt.Sprintf("ollama api returned status %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode ollama response: %w", err)
	}
	return nil
}
