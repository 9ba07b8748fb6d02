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

// Package dispatcher runs stage graph executions off the HTTP request
// path: a fixed pool of worker executors consumes run/resume commands,
// invokes the workflow engine, retries transient engine-level errors with
// bounded backoff, and reports outcomes back into the task record store,
// mirroring the teacher's worker-pool ingestion pattern in
// v2/rag/search.go (IngestDocuments), generalized from a fan-out/fan-in
// batch job to a long-lived command queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kadirpekel/taskflow/pkg/broadcast"
	"github.com/kadirpekel/taskflow/pkg/config"
	"github.com/kadirpekel/taskflow/pkg/retry"
	"github.com/kadirpekel/taskflow/pkg/task"
	"github.com/kadirpekel/taskflow/pkg/workflow"
)

// Command is either a RunCommand or a ResumeCommand.
type Command interface {
	taskID() uuid.UUID
}

// RunCommand begins a new stage graph execution for an existing task
// record.
type RunCommand struct {
	TaskID uuid.UUID
	Prompt string
}

func (c RunCommand) taskID() uuid.UUID { return c.TaskID }

// ResumeCommand continues a suspended execution with the delivered
// approval payload.
type ResumeCommand struct {
	TaskID   uuid.UUID
	Approval workflow.Approval
}

func (c ResumeCommand) taskID() uuid.UUID { return c.TaskID }

// Executor is the subset of workflow.Engine the dispatcher needs. It lets
// tests substitute a fake stage graph without touching Redis.
type Executor interface {
	Run(ctx context.Context, taskID uuid.UUID, prompt string) (workflow.RunOutcome, error)
	Resume(ctx context.Context, taskID uuid.UUID, approval workflow.Approval) (workflow.RunOutcome, error)
	SetStageObserver(obs workflow.StageObserver)
}

// Recorder is the subset of task.Store the dispatcher needs to report
// outcomes. It lets tests substitute a fake record store without a live
// database.
type Recorder interface {
	SetState(ctx context.Context, id uuid.UUID, next task.State) error
	SetResult(ctx context.Context, id uuid.UUID, result string) error
	SetError(ctx context.Context, id uuid.UUID, message string) error
	AppendLog(ctx context.Context, id uuid.UUID, agent, action string) error
}

// Dispatcher owns a pool of worker goroutines, each draining its own
// command queue. Commands are routed to a worker by hashing task_id, so
// every command for a given task lands on the same queue and is therefore
// processed in submission order without an explicit per-task lock.
type Dispatcher struct {
	cfg     *config.DispatcherConfig
	engine  Executor
	tasks   Recorder
	events  *broadcast.Registry
	retryer *retry.Retryer

	queues []chan Command
	wg     sync.WaitGroup
}

// New builds a Dispatcher with cfg.Workers queues of size cfg.QueueSize
// each, wired to engine for execution, tasks for recording outcomes, and
// events for lifecycle broadcast.
func New(cfg *config.DispatcherConfig, engine Executor, tasks Recorder, events *broadcast.Registry) *Dispatcher {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.MaxRetries
	retryCfg.BaseDelay = time.Duration(cfg.BaseRetryDelaySeconds) * time.Second

	d := &Dispatcher{
		cfg:     cfg,
		engine:  engine,
		tasks:   tasks,
		events:  events,
		retryer: retry.New(retryCfg),
		queues:  make([]chan Command, cfg.Workers),
	}
	for i := range d.queues {
		d.queues[i] = make(chan Command, cfg.QueueSize)
	}
	engine.SetStageObserver(d.recordStageTransition)
	return d
}

// Start launches the worker pool. Call Stop to drain and shut it down.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, queue := range d.queues {
		d.wg.Add(1)
		go d.worker(ctx, i, queue)
	}
}

// Stop closes every worker queue and waits for in-flight commands to
// finish. No more commands may be submitted after Stop is called.
func (d *Dispatcher) Stop() {
	for _, queue := range d.queues {
		close(queue)
	}
	d.wg.Wait()
}

// Submit enqueues cmd onto the worker responsible for its task_id. It
// blocks only until the target worker's queue has room, never on
// execution itself.
func (d *Dispatcher) Submit(cmd Command) {
	d.queues[d.shard(cmd.taskID())] <- cmd
}

func (d *Dispatcher) shard(taskID uuid.UUID) int {
	h := fnv.New32a()
	h.Write(taskID[:])
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) worker(ctx context.Context, id int, queue chan Command) {
	defer d.wg.Done()
	for cmd := range queue {
		d.handle(ctx, cmd)
	}
	slog.Debug("dispatcher worker stopped", "worker", id)
}

func (d *Dispatcher) handle(ctx context.Context, cmd Command) {
	taskID := cmd.taskID()

	if _, ok := cmd.(RunCommand); ok {
		d.recordState(ctx, taskID, task.Running)
	}

	outcome, err := retry.DoWithResult(ctx, d.retryer, fmt.Sprintf("task:%s", taskID), func() (workflow.RunOutcome, error) {
		switch c := cmd.(type) {
		case RunCommand:
			return d.engine.Run(ctx, c.TaskID, c.Prompt)
		case ResumeCommand:
			return d.engine.Resume(ctx, c.TaskID, c.Approval)
		default:
			return workflow.RunOutcome{}, fmt.Errorf("unknown command type %T", cmd)
		}
	})
	if err != nil {
		d.finishFailed(ctx, taskID, err)
		return
	}

	switch outcome.Kind {
	case workflow.OutcomeSuspended:
		d.finishSuspended(ctx, taskID)
	case workflow.OutcomeCompleted:
		d.finishCompleted(ctx, taskID, outcome.State.Result)
	case workflow.OutcomeFailed:
		d.finishFailed(ctx, taskID, outcome.Err)
	}
}

// recordStageTransition is the engine's StageObserver: it drives the task
// record through the intermediate lifecycle states (Researching, Writing)
// that §4.2's graph requires between Running and AwaitingApproval, so that
// the eventual AwaitingApproval transition is a legal edge rather than one
// leaping straight out of Pending/Running.
func (d *Dispatcher) recordStageTransition(ctx context.Context, taskID uuid.UUID, stage workflow.Stage) {
	next, ok := stageTaskState(stage)
	if !ok {
		return
	}
	d.recordState(ctx, taskID, next)
}

func stageTaskState(stage workflow.Stage) (task.State, bool) {
	switch stage {
	case workflow.StageResearch:
		return task.Researching, true
	case workflow.StageWriting:
		return task.Writing, true
	default:
		return "", false
	}
}

// recordState transitions the task record and broadcasts on success. A
// transition that the lifecycle graph disallows from the task's current
// state (e.g. a retried run re-entering research after already reaching
// writing) is logged and otherwise ignored: the command's eventual outcome
// still drives the record to a terminal or AwaitingApproval state.
func (d *Dispatcher) recordState(ctx context.Context, taskID uuid.UUID, next task.State) {
	if err := d.tasks.SetState(ctx, taskID, next); err != nil {
		slog.Debug("stage transition not recorded", "task_id", taskID, "state", next, "error", err)
		return
	}
	d.events.Broadcast(broadcast.Event{TaskID: taskID, State: next})
}

func (d *Dispatcher) finishSuspended(ctx context.Context, taskID uuid.UUID) {
	if err := d.tasks.SetState(ctx, taskID, task.AwaitingApproval); err != nil {
		slog.Error("failed to record awaiting-approval state", "task_id", taskID, "error", err)
	}
	if err := d.tasks.AppendLog(ctx, taskID, "dispatcher", "Awaiting approval"); err != nil {
		slog.Warn("failed to append activity log", "task_id", taskID, "error", err)
	}
	d.events.Broadcast(broadcast.Event{TaskID: taskID, State: task.AwaitingApproval})
}

func (d *Dispatcher) finishCompleted(ctx context.Context, taskID uuid.UUID, result string) {
	if err := d.tasks.SetResult(ctx, taskID, result); err != nil {
		slog.Error("failed to record completion", "task_id", taskID, "error", err)
	}
	d.events.Broadcast(broadcast.Event{TaskID: taskID, State: task.Completed, Result: result})
}

func (d *Dispatcher) finishFailed(ctx context.Context, taskID uuid.UUID, cause error) {
	var retryErr *retry.Error
	if errors.As(cause, &retryErr) && retryErr.LastError != nil {
		cause = retryErr.LastError
	}
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	if err := d.tasks.SetError(ctx, taskID, message); err != nil {
		slog.Error("failed to record failure", "task_id", taskID, "error", err)
	}
	d.events.Broadcast(broadcast.Event{TaskID: taskID, State: task.Failed})
}
