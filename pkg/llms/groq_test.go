package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewGroqProviderMissingKey(t *testing.T) {
	_, err := NewGroqProvider(testLLMConfig("", "llama-3.3-70b-versatile"))
	if err == nil {
		t.Fatal("NewGroqProvider() error = nil, want error for missing API key")
	}
}

func TestGroqProviderComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		resp := OpenAIChatResponse{
			Choices: []OpenAIChatChoice{{Message: OpenAIChatMessage{Role: "assistant", Content: "groq says hi"}}},
			Usage:   OpenAIUsage{PromptTokens: 4, CompletionTokens: 3},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	cfg := testLLMConfig("gsk-test-key", "llama-3.3-70b-versatile")
	cfg.BaseURL = server.URL
	provider, err := NewGroqProvider(cfg)
	if err != nil {
		t.Fatalf("NewGroqProvider() error = %v", err)
	}

	completion, err := provider.Complete(context.Background(), "", []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if completion.Text != "groq says hi" {
		t.Errorf("Text = %q, want %q", completion.Text, "groq says hi")
	}
}
