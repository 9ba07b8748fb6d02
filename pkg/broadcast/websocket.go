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

package broadcast

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kadirpekel/taskflow/pkg/task"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades r to a websocket connection and streams events
// for taskID until the client disconnects or an event with a terminal
// state has been sent. A confirmation event carrying
// the task's current state is sent immediately on subscription.
func (r *Registry) ServeWebSocket(w http.ResponseWriter, req *http.Request, taskID uuid.UUID, current task.State) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		http.Error(w, "failed to upgrade to websocket", http.StatusBadRequest)
		return
	}
	defer conn.Close()

	ch := make(chan Event, 16)
	r.Subscribe(taskID, ch)
	defer r.Unsubscribe(taskID, ch)

	if err := conn.WriteJSON(Event{TaskID: taskID, State: current}); err != nil {
		return
	}

	for event := range ch {
		if err := conn.WriteJSON(event); err != nil {
			slog.Debug("observer disconnected", "task_id", taskID, "error", err)
			return
		}
		if event.State.IsTerminal() {
			return
		}
	}
}
