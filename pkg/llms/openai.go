package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kadirpekel/taskflow/pkg/config"
	"github.com/kadirpekel/taskflow/pkg/httpclient"
)

// ============================================================================
// OPENAI PROVIDER IMPLEMENTATION
// Uses the Chat Completions API. The workflow's collaborators issue one
// completion per call with no streaming, tool use, or reasoning traces, so
// the heavier Responses API surface is unnecessary here.
// ============================================================================

// OpenAIProvider implements LLMProvider for OpenAI's Chat Completions API.
type OpenAIProvider struct {
	config     *config.LLMConfig
	httpClient *httpclient.Client
}

// OpenAIChatMessage is a single message in a Chat Completions request.
type OpenAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIChatRequest is the request payload for the Chat Completions API.
type OpenAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []OpenAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

// OpenAIChatResponse is the response payload from the Chat Completions API.
type OpenAIChatResponse struct {
	Choices []OpenAIChatChoice `json:"choices"`
	Usage   OpenAIUsage        `json:"usage"`
	Error   *OpenAIError       `json:"error,omitempty"`
}

// OpenAIChatChoice is one completion choice.
type OpenAIChatChoice struct {
	Message      OpenAIChatMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

// OpenAIUsage reports token usage.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// OpenAIError represents an API error.
type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func createHTTPClient(cfg *config.LLMConfig) *httpclient.Client {
	return httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
	)
}

// NewOpenAIProvider creates a new OpenAI provider from config.
func NewOpenAIProvider(cfg *config.LLMConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI")
	}

	return &OpenAIProvider{
		config:     cfg,
		httpClient: createHTTPClient(cfg),
	}, nil
}

// GetModelName returns the model name.
func (p *OpenAIProvider) GetModelName() string {
	return p.config.Model
}

// Close closes the provider. The Chat Completions API is stateless over
// plain HTTP, so there is nothing to release.
func (p *OpenAIProvider) Close() error {
	return nil
}

// Complete sends a system prompt and conversation messages and returns the
// model's response.
func (p *OpenAIProvider) Complete(ctx context.Context, system string, messages []Message) (*Completion, error) {
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

	return doChatCompletion(ctx, p.httpClient, baseURLOrDefault(p.config.BaseURL, "https://api.openai.com/v1"), p.config.APIKey, request)
}

func baseURLOrDefault(baseURL, fallback string) string {
	if baseURL != "" {
		return baseURL
	}
	return fallback
}

// doChatCompletion performs a Chat Completions request against an
// OpenAI-compatible endpoint. Shared by OpenAIProvider and GroqProvider,
// since Groq's API mirrors OpenAI's Chat Completions shape.
func doChatCompletion(ctx context.Context, client *httpclient.Client, baseURL, apiKey string, request OpenAIChatRequest) (*Completion, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(jsonData)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response OpenAIChatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no completion choices returned")
	}

	return &Completion{
		Text:         response.Choices[0].Message.Content,
		PromptTokens: response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
	}, nil
}
