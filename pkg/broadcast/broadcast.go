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

// Package broadcast implements the observer registry: external observers
// subscribe to a task_id and receive a push event on every lifecycle
// transition of that task, mirroring the teacher's a2a websocket streaming
// handler but generalized from a single in-flight stream to a
// subscribe/unsubscribe registry with many concurrent observers per task.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/kadirpekel/taskflow/pkg/task"
)

// Event is the structured payload delivered to observers on every
// lifecycle transition.
type Event struct {
	TaskID    uuid.UUID  `json:"task_id"`
	State     task.State `json:"state"`
	Result    string     `json:"result,omitempty"`
	AgentName string     `json:"agent_name,omitempty"`
	Action    string     `json:"action,omitempty"`
}

// Registry holds, per task_id, the set of channels currently subscribed to
// receive events. Registration, deregistration, and broadcast delivery are
// all guarded by a single mutex; delivery itself happens outside the lock
// so a slow or disconnected observer cannot stall registration for others.
type Registry struct {
	mu        sync.Mutex
	observers map[uuid.UUID]map[chan Event]struct{}
}

// New creates an empty observer registry.
func New() *Registry {
	return &Registry{observers: make(map[uuid.UUID]map[chan Event]struct{})}
}

// Subscribe registers ch to receive events for taskID. The caller owns ch
// and must eventually call Unsubscribe to release it; buffering on ch is
// the caller's responsibility (broadcast is non-blocking, see Broadcast).
func (r *Registry) Subscribe(taskID uuid.UUID, ch chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.observers[taskID]
	if !ok {
		set = make(map[chan Event]struct{})
		r.observers[taskID] = set
	}
	set[ch] = struct{}{}
}

// Unsubscribe removes ch from taskID's observer set. It does not close ch;
// the subscriber owns the channel's lifecycle.
func (r *Registry) Unsubscribe(taskID uuid.UUID, ch chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.observers[taskID]
	if !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(r.observers, taskID)
	}
}

// Broadcast delivers event to every channel currently subscribed to
// event.TaskID. Delivery is best-effort: a channel whose buffer is full is
// skipped rather than blocking the broadcaster or other observers.
func (r *Registry) Broadcast(event Event) {
	r.mu.Lock()
	set := r.observers[event.TaskID]
	recipients := make([]chan Event, 0, len(set))
	for ch := range set {
		recipients = append(recipients, ch)
	}
	r.mu.Unlock()

	for _, ch := range recipients {
		select {
		case ch <- event:
		default:
		}
	}
}
