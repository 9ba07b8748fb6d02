// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kadirpekel/taskflow/pkg/llms"
)

// PromptAnalyzer extracts research topics, task kind, and free-form
// context from a user's prompt.
type PromptAnalyzer interface {
	Analyze(ctx context.Context, prompt string) (Analysis, error)
}

// ResearchCollaborator produces findings text for a single topic.
type ResearchCollaborator interface {
	Research(ctx context.Context, topic, prompt, context string) (string, error)
}

// Writer renders a draft from research findings for a given task kind.
type Writer interface {
	Write(ctx context.Context, kind TaskKind, prompt, researchContext string) (string, error)
}

// LLMAnalyzer implements PromptAnalyzer by asking an LLMProvider to emit
// structured JSON, mirroring the original system's analysis prompt.
type LLMAnalyzer struct {
	provider llms.LLMProvider
}

func NewLLMAnalyzer(provider llms.LLMProvider) *LLMAnalyzer {
	return &LLMAnalyzer{provider: provider}
}

const analysisSystemPrompt = `You are a prompt analysis assistant. Analyze the user's request and respond ONLY with valid JSON of the form:
{"topics": ["topic1", "topic2"], "task_kind": "comparison"|"tutorial"|"analysis"|"summary", "context": "any additional requirements"}`

type analysisResponse struct {
	Topics   []string `json:"topics"`
	TaskKind string   `json:"task_kind"`
	Context  string   `json:"context"`
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, prompt string) (Analysis, error) {
	completion, err := a.provider.Complete(ctx, analysisSystemPrompt, []llms.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze prompt: %w", err)
	}

	text := strings.TrimSpace(completion.Text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var parsed analysisResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return Analysis{}, fmt.Errorf("parse analysis response: %w", err)
	}
	if len(parsed.Topics) == 0 {
		return Analysis{}, fmt.Errorf("analysis response has no topics")
	}

	kind := TaskKind(parsed.TaskKind)
	if !validTaskKind(kind) {
		kind = TaskKindSummary
	}

	return Analysis{Topics: parsed.Topics, TaskKind: kind, Context: parsed.Context}, nil
}

func validTaskKind(k TaskKind) bool {
	switch k {
	case TaskKindComparison, TaskKindTutorial, TaskKindAnalysis, TaskKindSummary:
		return true
	default:
		return false
	}
}

// LLMResearcher implements ResearchCollaborator via a single completion
// call per topic.
type LLMResearcher struct {
	provider llms.LLMProvider
}

func NewLLMResearcher(provider llms.LLMProvider) *LLMResearcher {
	return &LLMResearcher{provider: provider}
}

const researchSystemPrompt = `You are a research assistant. Provide concise, factual findings on the given topic in the context of the user's original request.`

func (r *LLMResearcher) Research(ctx context.Context, topic, prompt, context string) (string, error) {
	query := fmt.Sprintf("Topic: %s\nOriginal request: %s", topic, prompt)
	if context != "" {
		query += fmt.Sprintf("\nContext: %s", context)
	}

	completion, err := r.provider.Complete(ctx, researchSystemPrompt, []llms.Message{
		{Role: "user", Content: query},
	})
	if err != nil {
		return "", fmt.Errorf("research %q: %w", topic, err)
	}
	return completion.Text, nil
}

// LLMWriter implements Writer by rendering one of four kind-specific
// templates, grounded verbatim on the original writing agent's templates.
type LLMWriter struct {
	provider llms.LLMProvider
}

func NewLLMWriter(provider llms.LLMProvider) *LLMWriter {
	return &LLMWriter{provider: provider}
}

var writingTemplates = map[TaskKind]string{
	TaskKindComparison: `You are a technical writer creating a comparison.

Based on the following research findings, write a clear comparison for a technical audience.

%s

## Original Request:
%s

Write a professional comparison that:
1. Highlights key differences between the subjects
2. Discusses strengths and weaknesses of each
3. Provides guidance on when to use each
4. Is concise but comprehensive (2-3 paragraphs)

Comparison:`,
	TaskKindTutorial: `You are a technical writer creating a tutorial.

Based on the following research findings, write a step-by-step tutorial.

%s

## Original Request:
%s

Write a clear tutorial that:
1. Lists prerequisites if needed
2. Provides numbered, actionable steps
3. Explains what each step accomplishes
4. Includes practical examples
5. Is beginner-friendly but technically accurate

Tutorial:`,
	TaskKindAnalysis: `You are a technical analyst creating an in-depth analysis.

Based on the following research findings, provide a comprehensive technical analysis.

%s

## Original Request:
%s

Write a detailed analysis that:
1. Examines key aspects in depth
2. Discusses trade-offs and considerations
3. Provides technical insights and recommendations
4. Is thorough and well-structured

Analysis:`,
	TaskKindSummary: `You are a technical writer creating an informative summary.

Based on the following research findings, write a clear summary.

%s

## Original Request:
%s

Write a concise summary that:
1. Covers the main points from the research
2. Is well-organized and easy to understand
3. Provides actionable information
4. Is appropriate for a technical audience

Summary:`,
}

func (w *LLMWriter) Write(ctx context.Context, kind TaskKind, prompt, researchContext string) (string, error) {
	template, ok := writingTemplates[kind]
	if !ok {
		template = writingTemplates[TaskKindSummary]
	}
	rendered := fmt.Sprintf(template, researchContext, prompt)

	completion, err := w.provider.Complete(ctx, "", []llms.Message{
		{Role: "user", Content: rendered},
	})
	if err != nil {
		return "", fmt.Errorf("write draft: %w", err)
	}
	return completion.Text, nil
}

// FormatResearchContext renders research results as markdown sections,
// one per topic, ordered per topics (not map iteration order).
func FormatResearchContext(topics []string, results map[string]string) string {
	if len(results) == 0 {
		return "No research available."
	}

	var b strings.Builder
	for i, topic := range topics {
		findings, ok := results[topic]
		if !ok {
			continue
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n%s", topic, findings)
	}
	return b.String()
}
