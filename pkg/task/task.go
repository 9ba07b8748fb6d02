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

// Package task provides the durable record of every workflow task: its
// identity, prompt, lifecycle state, final result, and append-only
// activity log.
package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is one of the lifecycle states a task moves through.
type State string

const (
	Pending          State = "Pending"
	Running          State = "Running"
	Researching      State = "Researching"
	Writing          State = "Writing"
	AwaitingApproval State = "AwaitingApproval"
	Resumed          State = "Resumed"
	Completed        State = "Completed"
	Failed           State = "Failed"
)

// IsTerminal reports whether no further transitions may leave this state.
func (s State) IsTerminal() bool {
	return s == Completed || s == Failed
}

// validTransitions enumerates the lifecycle edges described in §4.2: no
// edge leaves either terminal state, AwaitingApproval is only reachable
// from Writing, and Resumed only from AwaitingApproval.
var validTransitions = map[State]map[State]bool{
	Pending:          {Running: true, Failed: true},
	Running:          {Researching: true, Failed: true},
	Researching:      {Writing: true, Failed: true},
	Writing:          {AwaitingApproval: true, Failed: true},
	AwaitingApproval: {Resumed: true, Failed: true},
	Resumed:          {Completed: true, Failed: true},
	Completed:        {},
	Failed:           {},
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s State) CanTransition(next State) bool {
	return validTransitions[s][next]
}

// LogEntry is one append-only activity log entry.
type LogEntry struct {
	Agent     string    `json:"agent"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is the durable record of a single workflow execution.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Prompt      string     `json:"prompt"`
	State       State      `json:"state"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	ActivityLog []LogEntry `json:"activity_log"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// New creates a new Task in the Pending state.
func New(prompt string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:          uuid.New(),
		Prompt:      prompt,
		State:       Pending,
		ActivityLog: []LogEntry{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ErrInvalidTransition is returned when a requested state change is not a
// legal edge in the lifecycle graph.
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid task state transition: %s -> %s", e.From, e.To)
}
