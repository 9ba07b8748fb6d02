// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
)

// LLMProvider identifies the LLM provider type.
type LLMProvider string

const (
	LLMProviderOpenAI    LLMProvider = "openai"
	LLMProviderGroq      LLMProvider = "groq"
	LLMProviderAnthropic LLMProvider = "anthropic"
)

// LLMConfig configures the model-provider selector used by the workflow's
// collaborators (prompt analyzer, research collaborator, writer).
type LLMConfig struct {
	// Provider selects the LLM backend (openai, groq, anthropic).
	Provider LLMProvider `yaml:"provider,omitempty"`

	// Model name (e.g. "gpt-4o-mini", "llama-3.3-70b-versatile").
	Model string `yaml:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// Temperature for generation.
	Temperature *float64 `yaml:"temperature,omitempty"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Timeout in seconds for a single completion call.
	Timeout int `yaml:"timeout,omitempty"`

	// MaxRetries is the HTTP-transport retry count (rate limits, 5xx).
	MaxRetries int `yaml:"max_retries,omitempty"`

	// RetryDelay is the base delay in seconds for HTTP-transport retries.
	RetryDelay int `yaml:"retry_delay,omitempty"`
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = detectProviderFromEnv()
	}

	if c.Model == "" {
		switch c.Provider {
		case LLMProviderOpenAI:
			c.Model = "gpt-4o-mini"
		case LLMProviderGroq:
			c.Model = "llama-3.3-70b-versatile"
		case LLMProviderAnthropic:
			c.Model = "claude-sonnet-4-20250514"
		}
	}

	c.APIKey = os.ExpandEnv(c.APIKey)
	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey(string(c.Provider))
	}

	if c.Temperature == nil {
		temp := 0.7
		c.Temperature = &temp
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
}

// Validate checks the LLM configuration.
func (c *LLMConfig) Validate() error {
	validProviders := map[LLMProvider]bool{
		LLMProviderOpenAI:    true,
		LLMProviderGroq:      true,
		LLMProviderAnthropic: true,
	}
	if c.Provider != "" && !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q (valid: openai, groq, anthropic)", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required for provider %q", c.Provider)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

// detectProviderFromEnv mirrors the original system's LLM_PROVIDER selector,
// defaulting to groq when no explicit selection or key is present.
func detectProviderFromEnv() LLMProvider {
	if p := os.Getenv("LLM_PROVIDER"); p != "" {
		return LLMProvider(p)
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return LLMProviderOpenAI
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return LLMProviderAnthropic
	}
	return LLMProviderGroq
}
