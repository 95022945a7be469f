package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider against the OpenAI chat API.
type OpenAIProvider struct {
	client *openai.Client
	config Config
}

// NewOpenAIProvider creates an OpenAI-backed provider.
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks the provider is configured and reachable.
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "OpenAI API check failed: %v\n", err)
		return false
	}
	return true
}

// Extract runs one batched field-extraction call in JSON mode and
// validates the response against the requested schema.
func (p *OpenAIProvider) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	if len(req.Fields) == 0 {
		return &ExtractResponse{Fields: map[string]any{}}, nil
	}

	model := p.config.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := p.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}
	timeout := time.Duration(p.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You extract structured fields from text. Answer with a single JSON object containing only the requested keys. Omit keys the text does not support.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildPrompt(req),
			},
		},
		MaxTokens:   maxTokens,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := p.client.CreateChatCompletion(ctxWithTimeout, chatReq)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	fields, err := ValidateResponse(raw, req.Fields)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", req.Module, err)
	}

	return &ExtractResponse{
		Fields:     fields,
		Model:      model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}
