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
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kadirpekel/taskflow/pkg/checkpoint"
	"github.com/kadirpekel/taskflow/pkg/retry"
	"github.com/kadirpekel/taskflow/pkg/scratchpad"
)

// ErrNoCheckpoint is returned by Resume when no suspended checkpoint
// exists for the given task id.
var ErrNoCheckpoint = errors.New("no checkpoint found for task")

// OutcomeKind tags the result of running or resuming the stage graph.
type OutcomeKind string

const (
	OutcomeSuspended OutcomeKind = "suspended"
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeFailed    OutcomeKind = "failed"
)

// SuspensionDescriptor is surfaced when the graph suspends at the approval
// stage, to be shown to the human approver.
type SuspensionDescriptor struct {
	TaskID   uuid.UUID `json:"task_id"`
	Question string    `json:"question"`
	Draft    string    `json:"draft"`
}

// RunOutcome is the tagged result of Run or Resume.
type RunOutcome struct {
	Kind       OutcomeKind
	State      *WorkflowState
	Suspension *SuspensionDescriptor
	Err        error
}

// StageObserver is notified when the engine is about to enter a stage that
// has a corresponding task lifecycle state (research, writing). It lets the
// dispatcher drive the task record's intermediate transitions without the
// workflow package knowing anything about task states.
type StageObserver func(ctx context.Context, taskID uuid.UUID, stage Stage)

// Engine executes the stage graph:
//
//	research -> writing -> approval --approved--> finalize
//	                            \---rejected---> rejected
//
// Each non-approval stage is a pure function from WorkflowState to a patch
// merged into the state. The approval stage suspends: it returns with a
// descriptor and a checkpoint, and resumption is a separate entry point
// (Resume) rather than an in-memory wait.
type Engine struct {
	analyzer         PromptAnalyzer
	fallbackAnalyzer PromptAnalyzer
	researcher       ResearchCollaborator
	writer           Writer

	scratchpad  *scratchpad.Store
	checkpoints *checkpoint.Store
	retryer     *retry.Retryer
	onStage     StageObserver
}

// New creates a stage graph Engine.
func New(analyzer PromptAnalyzer, researcher ResearchCollaborator, writer Writer, scratch *scratchpad.Store, checkpoints *checkpoint.Store) *Engine {
	return &Engine{
		analyzer:         analyzer,
		fallbackAnalyzer: NewFallbackAnalyzer(),
		researcher:       researcher,
		writer:           writer,
		scratchpad:       scratch,
		checkpoints:      checkpoints,
		retryer:          retry.New(retry.DefaultConfig()),
	}
}

// SetStageObserver registers obs to be called whenever the engine is about
// to enter a stage with a corresponding task lifecycle state. Replaces any
// previously registered observer; nil disables notification.
func (e *Engine) SetStageObserver(obs StageObserver) {
	e.onStage = obs
}

// Run begins a new execution for taskID with the given prompt.
func (e *Engine) Run(ctx context.Context, taskID uuid.UUID, prompt string) (RunOutcome, error) {
	return e.execute(ctx, NewState(taskID, prompt), StageResearch)
}

// Resume continues a suspended execution using the checkpoint last saved
// for taskID, injecting the approval payload at the suspension site and
// routing to finalize or rejected.
func (e *Engine) Resume(ctx context.Context, taskID uuid.UUID, approval Approval) (RunOutcome, error) {
	blob, exists, err := e.checkpoints.Load(ctx, taskID)
	if err != nil {
		return RunOutcome{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if !exists {
		return RunOutcome{}, ErrNoCheckpoint
	}

	cp, err := Deserialize(blob)
	if err != nil {
		return RunOutcome{}, fmt.Errorf("decode checkpoint: %w", err)
	}

	state := cp.State
	state.Approval = approval

	next := StageRejected
	if approval.Approved {
		next = StageFinalize
	}
	return e.execute(ctx, state, next)
}

// execute runs the stage graph from the given stage until it suspends,
// reaches a terminal stage, or a stage raises a genuine exception. Before
// entering any stage, it commits a checkpoint so a process crash mid-stage
// leaves a resumable boundary. Stage exceptions (failed checkpoint I/O, a
// hard analyzer/writer failure) are returned as a non-nil error so the
// dispatcher's retry policy sees them; suspension and the rejected-outcome
// business result are returned as a RunOutcome with a nil error, since
// neither is an exception to retry.
func (e *Engine) execute(ctx context.Context, state *WorkflowState, stage Stage) (RunOutcome, error) {
	for {
		e.notifyStage(ctx, state.TaskID, stage)

		if err := e.checkpointAt(ctx, state, stage); err != nil {
			e.release(context.Background(), state.TaskID)
			return RunOutcome{}, fmt.Errorf("checkpoint stage %q: %w", stage, err)
		}

		switch stage {
		case StageResearch:
			patch, err := e.runResearch(ctx, state)
			if err != nil {
				e.release(context.Background(), state.TaskID)
				return RunOutcome{}, fmt.Errorf("research stage: %w", err)
			}
			state.Apply(patch)
			if err := e.scratchpad.Save(ctx, state.TaskID, researchScratchpadPatch(state)); err != nil {
				slog.Warn("scratchpad save failed", "task_id", state.TaskID, "error", err)
			}
			stage = StageWriting

		case StageWriting:
			patch, err := e.runWriting(ctx, state)
			if err != nil {
				e.release(context.Background(), state.TaskID)
				return RunOutcome{}, fmt.Errorf("writing stage: %w", err)
			}
			state.Apply(patch)
			stage = StageApproval

		case StageApproval:
			return e.suspend(ctx, state)

		case StageFinalize:
			state.Apply(Patch{Result: &state.Draft})
			e.release(ctx, state.TaskID)
			return RunOutcome{Kind: OutcomeCompleted, State: state}, nil

		case StageRejected:
			state.Apply(Patch{})
			e.release(ctx, state.TaskID)
			return RunOutcome{Kind: OutcomeFailed, State: state, Err: errors.New(state.Approval.Feedback)}, nil

		default:
			e.release(context.Background(), state.TaskID)
			return RunOutcome{}, fmt.Errorf("unknown stage %q", stage)
		}
	}
}

// notifyStage reports stage entry to the registered observer. Only
// research and writing have a corresponding task lifecycle state; approval,
// finalize, and rejected are reported via the returned RunOutcome instead.
func (e *Engine) notifyStage(ctx context.Context, taskID uuid.UUID, stage Stage) {
	if e.onStage == nil {
		return
	}
	switch stage {
	case StageResearch, StageWriting:
		e.onStage(ctx, taskID, stage)
	}
}

func (e *Engine) release(ctx context.Context, taskID uuid.UUID) {
	if err := e.checkpoints.Delete(ctx, taskID); err != nil {
		slog.Warn("checkpoint release failed", "task_id", taskID, "error", err)
	}
	if err := e.scratchpad.Delete(ctx, taskID); err != nil {
		slog.Warn("scratchpad release failed", "task_id", taskID, "error", err)
	}
}

func (e *Engine) checkpointAt(ctx context.Context, state *WorkflowState, stage Stage) error {
	cp := &Checkpoint{State: state, NextStage: stage}
	blob, err := cp.Serialize()
	if err != nil {
		return fmt.Errorf("serialize checkpoint: %w", err)
	}
	if err := e.checkpoints.Save(ctx, state.TaskID, blob); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (e *Engine) suspend(ctx context.Context, state *WorkflowState) (RunOutcome, error) {
	// The checkpoint already committed at the top of execute() points at
	// StageApproval; resume reads it and overlays the approval payload.
	descriptor := &SuspensionDescriptor{
		TaskID:   state.TaskID,
		Question: "Approve this draft?",
		Draft:    state.Draft,
	}
	return RunOutcome{Kind: OutcomeSuspended, State: state, Suspension: descriptor}, nil
}

func researchScratchpadPatch(state *WorkflowState) map[string]any {
	return map[string]any{
		"research_results": state.ResearchResults,
		"topics":           state.Analysis.Topics,
		"task_kind":        state.Analysis.TaskKind,
		"context":          state.Analysis.Context,
	}
}
