package llms

import (
	"context"
	"fmt"

	"github.com/kadirpekel/taskflow/pkg/config"
	"github.com/kadirpekel/taskflow/pkg/registry"
)

// LLMProvider performs single-shot text completions against a hosted model.
// The workflow's collaborators (prompt analyzer, research collaborator,
// writer) each issue one completion per invocation; none need streaming,
// tool calls, or multi-turn state.
type LLMProvider interface {
	// Complete sends a system prompt plus conversation messages and returns
	// the model's response.
	Complete(ctx context.Context, system string, messages []Message) (*Completion, error)

	GetModelName() string
	Close() error
}

// Registry holds named LLM providers.
type Registry struct {
	*registry.BaseRegistry[LLMProvider]
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[LLMProvider](),
	}
}

// RegisterLLM registers a named provider.
func (r *Registry) RegisterLLM(name string, provider LLMProvider) error {
	if name == "" {
		return fmt.Errorf("LLM name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("LLM provider cannot be nil")
	}
	return r.Register(name, provider)
}

// NewProviderFromConfig constructs an LLMProvider for the configured
// provider type.
func NewProviderFromConfig(cfg *config.LLMConfig) (LLMProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("LLM config cannot be nil")
	}

	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		return NewOpenAIProvider(cfg)
	case config.LLMProviderGroq:
		return NewGroqProvider(cfg)
	case config.LLMProviderAnthropic:
		return NewAnthropicProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: openai, groq, anthropic)", cfg.Provider)
	}
}

// GetLLM looks up a registered provider by name.
func (r *Registry) GetLLM(name string) (LLMProvider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("LLM provider '%s' not found", name)
	}
	return provider, nil
}
