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
	"fmt"
	"log/slog"

	"github.com/kadirpekel/taskflow/pkg/retry"
)

// runResearch extracts topics from the prompt (falling back to a
// deterministic keyword analyzer if the LLM-backed one fails hard) and
// researches each topic with a bounded retry policy. A topic whose
// research repeatedly fails is retained with a textual error marker so
// the pipeline can still produce output.
func (e *Engine) runResearch(ctx context.Context, state *WorkflowState) (Patch, error) {
	analysis, err := e.analyzer.Analyze(ctx, state.Prompt)
	if err != nil {
		slog.Warn("prompt analysis failed, using fallback analyzer", "task_id", state.TaskID, "error", err)
		analysis, err = e.fallbackAnalyzer.Analyze(ctx, state.Prompt)
		if err != nil {
			return Patch{}, fmt.Errorf("fallback analysis: %w", err)
		}
	}

	results := make(map[string]string, len(analysis.Topics))
	for _, topic := range analysis.Topics {
		findings, err := retry.DoWithResult(ctx, e.retryer, "research:"+topic, func() (string, error) {
			return e.researcher.Research(ctx, topic, state.Prompt, analysis.Context)
		})
		if err != nil {
			slog.Warn("research failed for topic", "task_id", state.TaskID, "topic", topic, "error", err)
			findings = fmt.Sprintf("Research failed: %v", err)
		}
		results[topic] = findings
	}

	return Patch{
		Stage:           StageWriting,
		Analysis:        &analysis,
		ResearchResults: results,
	}, nil
}

// runWriting renders a draft using the writer collaborator, preferring
// in-memory research and falling back to the scratchpad (populated after a
// checkpoint restore on a fresh process, where in-memory state is absent).
func (e *Engine) runWriting(ctx context.Context, state *WorkflowState) (Patch, error) {
	results := state.ResearchResults
	topics := state.Analysis.Topics
	kind := state.Analysis.TaskKind

	if len(results) == 0 {
		slog.Debug("no in-memory research, falling back to scratchpad", "task_id", state.TaskID)
		if workspace, exists, err := e.scratchpad.Get(ctx, state.TaskID); err == nil && exists {
			results = decodeResearchResults(workspace)
			if t, ok := workspace["topics"].([]any); ok {
				topics = topics[:0]
				for _, v := range t {
					if s, ok := v.(string); ok {
						topics = append(topics, s)
					}
				}
			}
			if k, ok := workspace["task_kind"].(string); ok && k != "" {
				kind = TaskKind(k)
			}
		}
	}

	if len(results) == 0 {
		errDraft := "Error: No research results available to generate content."
		return Patch{Stage: StageApproval, Draft: &errDraft}, nil
	}

	researchContext := FormatResearchContext(topics, results)
	draft, err := e.writer.Write(ctx, kind, state.Prompt, researchContext)
	if err != nil {
		return Patch{}, fmt.Errorf("write draft: %w", err)
	}

	return Patch{Stage: StageApproval, Draft: &draft}, nil
}

func decodeResearchResults(workspace map[string]any) map[string]string {
	raw, ok := workspace["research_results"].(map[string]any)
	if !ok {
		return nil
	}
	results := make(map[string]string, len(raw))
	for topic, v := range raw {
		if s, ok := v.(string); ok {
			results[topic] = s
		}
	}
	return results
}
