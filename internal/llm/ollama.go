package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider implements Provider against a local Ollama server.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	System string `json:"system,omitempty"`
	Format string `json:"format,omitempty"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count,omitempty"`
}

// NewOllamaProvider creates an Ollama-backed provider.
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OllamaProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		config:     config,
	}, nil
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// IsAvailable checks the Ollama server is reachable.
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Extract runs one batched extraction call in Ollama's JSON format mode.
func (p *OllamaProvider) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	if len(req.Fields) == 0 {
		return &ExtractResponse{Fields: map[string]any{}}, nil
	}

	model := p.config.Model
	if model == "" {
		model = "llama3.1"
	}

	body, err := json.Marshal(ollamaRequest{
		Model:  model,
		Prompt: BuildPrompt(req),
		Stream: false,
		System: "You extract structured fields from text. Answer with a single JSON object containing only the requested keys. Omit keys the text does not support.",
		Format: "json",
		Options: ollamaOptions{
			Temperature: 0,
			NumPredict:  p.config.MaxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Ollama request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var oResp ollamaResponse
	if err := json.Unmarshal(respBody, &oResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(oResp.Response), &raw); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	fields, err := ValidateResponse(raw, req.Fields)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", req.Module, err)
	}

	return &ExtractResponse{
		Fields:     fields,
		Model:      oResp.Model,
		TokensUsed: oResp.EvalCount,
	}, nil
}
