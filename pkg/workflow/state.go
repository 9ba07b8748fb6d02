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

// Package workflow implements the stage graph engine: a fixed directed
// graph of stages executed against a mutable WorkflowState, with exactly
// one suspension point (human approval) that survives process restarts
// via checkpointing.
package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Stage is a tagged variant identifying a node in the stage graph. Using a
// small enum plus a transition table (rather than a dynamic-dispatch DAG)
// keeps the checkpoint format trivial: resuming is "deserialize state, jump
// to this stage".
type Stage string

const (
	StageResearch Stage = "research"
	StageWriting  Stage = "writing"
	StageApproval Stage = "approval"
	StageFinalize Stage = "finalize"
	StageRejected Stage = "rejected"
)

// TaskKind is the analyzer's classification of what the user is asking
// for, used to select a writing template.
type TaskKind string

const (
	TaskKindComparison TaskKind = "comparison"
	TaskKindTutorial   TaskKind = "tutorial"
	TaskKindAnalysis   TaskKind = "analysis"
	TaskKindSummary    TaskKind = "summary"
)

// Analysis is the prompt analyzer's output: what to research and how to
// frame the eventual draft.
type Analysis struct {
	Topics   []string `json:"topics"`
	TaskKind TaskKind `json:"task_kind"`
	Context  string   `json:"context"`
}

// Approval is the payload delivered to a resumed approval stage.
type Approval struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

// WorkflowState is the mutable state threaded through the stage graph. It
// is checkpointed verbatim (as JSON) at every stage boundary.
type WorkflowState struct {
	TaskID   uuid.UUID `json:"task_id"`
	Prompt   string    `json:"prompt"`
	Stage    Stage     `json:"stage"`
	Analysis Analysis  `json:"analysis"`

	// ResearchResults maps topic -> findings. Order of topics for
	// rendering is taken from Analysis.Topics, not map iteration.
	ResearchResults map[string]string `json:"research_results"`

	Draft    string   `json:"draft"`
	Approval Approval `json:"approval"`
	Result   string   `json:"result"`
}

// NewState seeds a fresh WorkflowState for a new execution.
func NewState(taskID uuid.UUID, prompt string) *WorkflowState {
	return &WorkflowState{
		TaskID:          taskID,
		Prompt:          prompt,
		Stage:           StageResearch,
		ResearchResults: make(map[string]string),
	}
}

// Patch is a partial WorkflowState merged into the running state between
// stages. Zero-valued fields are treated as "not set" for the scalar
// fields; ResearchResults is always union-merged regardless of whether it
// is present, so a nil map is equivalent to an empty one.
type Patch struct {
	Stage           Stage
	Analysis        *Analysis
	ResearchResults map[string]string
	Draft           *string
	Approval        *Approval
	Result          *string
}

// Apply merges p into s. Scalars overwrite; ResearchResults is
// union-merged with new keys added and existing keys overwritten; the
// ordering of Analysis.Topics is preserved by Analysis always replacing
// wholesale (the analyzer only ever runs once, at the research stage).
func (s *WorkflowState) Apply(p Patch) {
	if p.Stage != "" {
		s.Stage = p.Stage
	}
	if p.Analysis != nil {
		s.Analysis = *p.Analysis
	}
	if len(p.ResearchResults) > 0 {
		if s.ResearchResults == nil {
			s.ResearchResults = make(map[string]string, len(p.ResearchResults))
		}
		for topic, findings := range p.ResearchResults {
			s.ResearchResults[topic] = findings
		}
	}
	if p.Draft != nil {
		s.Draft = *p.Draft
	}
	if p.Approval != nil {
		s.Approval = *p.Approval
	}
	if p.Result != nil {
		s.Result = *p.Result
	}
}

// Checkpoint is the durable snapshot written before entering any stage: the
// state as it stood at the boundary, plus the stage to execute next (the
// "resume cursor"). On a plain (non-suspended) boundary, NextStage equals
// State.Stage. On suspension, the branch to take (StageFinalize vs.
// StageRejected) depends on the approval payload, which hasn't arrived yet,
// so the checkpoint points back at StageApproval. Resume does not re-run
// that stage: it applies the payload and goes straight to StageFinalize or
// StageRejected.
type Checkpoint struct {
	State     *WorkflowState `json:"state"`
	NextStage Stage          `json:"next_stage"`
}

// Serialize encodes the checkpoint as JSON.
func (c *Checkpoint) Serialize() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("serialize checkpoint: %w", err)
	}
	return data, nil
}

// Deserialize decodes a checkpoint previously produced by Serialize.
func Deserialize(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("deserialize checkpoint: %w", err)
	}
	return &c, nil
}
