package llms

import (
	"context"
	"fmt"

	"github.com/kadirpekel/taskflow/pkg/config"
	"github.com/kadirpekel/taskflow/pkg/httpclient"
)

// ============================================================================
// GROQ PROVIDER IMPLEMENTATION
// Groq exposes an OpenAI-compatible Chat Completions endpoint, so the
// provider differs from OpenAIProvider only in its default host and API key
// lookup.
// ============================================================================

// GroqProvider implements LLMProvider against Groq's OpenAI-compatible API.
type GroqProvider struct {
	config     *config.LLMConfig
	httpClient *httpclient.Client
}

// NewGroqProvider creates a new Groq provider from config.
func NewGroqProvider(cfg *config.LLMConfig) (*GroqProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Groq")
	}

	return &GroqProvider{
		config:     cfg,
		httpClient: createHTTPClient(cfg),
	}, nil
}

// GetModelName returns the model name.
func (p *GroqProvider) GetModelName() string {
	return p.config.Model
}

// Close closes the provider. Groq's API is stateless over plain HTTP, so
// there is nothing to release.
func (p *GroqProvider) Close() error {
	return nil
}

// Complete sends a system prompt and conversation messages and returns the
// model's response.
func (p *GroqProvider) Complete(ctx context.Context, system string, messages []Message) (*Completion, error) {
	chatMessages := make([]OpenAIChatMessage, 0, len(messages)+1)
	if system != "" {
		chatMessages = append(chatMessages, OpenAIChatMessage{Role: "system", Content: system})
	}
	for _, msg := range messages {
		chatMessages = append(chatMessages, OpenAIChatMessage{Role: msg.Role, Content: msg.Content})
	}

	temperature := 0.7
	if p.config.Temperature != nil {
		temperature = *p.config.Temperature
	}

	request := OpenAIChatRequest{
		Model:       p.config.Model,
		Messages:    chatMessages,
		Temperature: temperature,
		MaxTokens:   p.config.MaxTokens,
	}

	return doChatCompletion(ctx, p.httpClient, baseURLOrDefault(p.config.BaseURL, "https://api.groq.com/openai/v1"), p.config.APIKey, request)
}
