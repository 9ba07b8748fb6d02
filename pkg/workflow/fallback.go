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
	"strings"
)

// FallbackAnalyzer is a deterministic, keyword-based PromptAnalyzer used
// when the LLM-backed analyzer fails hard. It always returns a non-empty
// topic list and classifies task_kind as summary unless a comparison,
// tutorial, or analysis keyword is present.
type FallbackAnalyzer struct{}

func NewFallbackAnalyzer() *FallbackAnalyzer { return &FallbackAnalyzer{} }

var keywordTopics = []struct {
	match string
	topic string
}{
	{"langgraph", "LangGraph"},
	{"crewai", "CrewAI"},
	{"redis", "Redis"},
	{"postgresql", "PostgreSQL"},
	{"postgres", "PostgreSQL"},
	{"docker", "Docker"},
	{"kubernetes", "Kubernetes"},
	{"k8s", "Kubernetes"},
}

func (a *FallbackAnalyzer) Analyze(_ context.Context, prompt string) (Analysis, error) {
	lower := strings.ToLower(prompt)

	var topics []string
	seen := make(map[string]bool)
	for _, kt := range keywordTopics {
		if strings.Contains(lower, kt.match) && !seen[kt.topic] {
			topics = append(topics, kt.topic)
			seen[kt.topic] = true
		}
	}
	if len(topics) == 0 {
		topics = []string{"general topic"}
	}

	kind := TaskKindSummary
	switch {
	case containsAny(lower, "compare", "vs", "versus", "difference"):
		kind = TaskKindComparison
	case containsAny(lower, "tutorial", "how to", "guide", "step"):
		kind = TaskKindTutorial
	case containsAny(lower, "analyze", "analysis", "evaluate", "examine"):
		kind = TaskKindAnalysis
	}

	return Analysis{Topics: topics, TaskKind: kind}, nil
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
