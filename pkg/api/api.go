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

// Package api implements the REST and websocket surface: task submission,
// lookup, approval, health, and the observer push channel.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kadirpekel/taskflow/pkg/broadcast"
	"github.com/kadirpekel/taskflow/pkg/config"
	"github.com/kadirpekel/taskflow/pkg/dispatcher"
	"github.com/kadirpekel/taskflow/pkg/observability"
	"github.com/kadirpekel/taskflow/pkg/task"
	"github.com/kadirpekel/taskflow/pkg/workflow"
)

// Submitter enqueues commands onto the dispatcher's worker pool.
type Submitter interface {
	Submit(cmd dispatcher.Command)
}

// Pinger reports whether a dependency is reachable, used by the health
// endpoint.
type Pinger interface {
	Ping() error
}

// Server wires the task record store, dispatcher, and observer registry
// into an http.Handler.
type Server struct {
	tasks   *task.Store
	submit  Submitter
	events  *broadcast.Registry
	metrics *observability.Metrics
	db      Pinger
	redis   Pinger
	cors    *config.CORSConfig

	router chi.Router
}

// New builds the API Server and its chi router. db and redis may be nil,
// in which case the health endpoint omits the corresponding check. cors
// may be nil, in which case a permissive development default is used.
func New(tasks *task.Store, submit Submitter, events *broadcast.Registry, metrics *observability.Metrics, db, redis Pinger, cors *config.CORSConfig) *Server {
	s := &Server{tasks: tasks, submit: submit, events: events, metrics: metrics, db: db, redis: redis, cors: cors}
	s.router = s.buildRouter()
	return s
}

// Handler returns the API's http.Handler, ready to mount or serve.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(s.corsMiddleware)
	if s.metrics != nil {
		r.Use(observability.HTTPMiddleware(s.metrics))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1/tasks", func(r chi.Router) {
		r.Post("/", s.handleCreateTask)
		r.Get("/{id}", s.handleGetTask)
		r.Post("/{id}/approve", s.handleApprove)
	})

	r.Get("/ws/tasks/{id}", s.handleWebSocket)

	return r
}

// corsMiddleware mirrors the allowed origins/methods/headers from s.cors,
// or falls back to a permissive default when none is configured.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	cors := s.cors
	if cors == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			for _, allowed := range cors.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(cors.AllowedMethods, ", "))
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(cors.AllowedHeaders, ", "))
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createTaskRequest struct {
	Prompt string `json:"prompt"`
}

type createTaskResponse struct {
	TaskID uuid.UUID  `json:"task_id"`
	State  task.State `json:"state"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	t := task.New(req.Prompt)
	if err := s.tasks.Create(r.Context(), t); err != nil {
		slog.Error("failed to create task record", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	s.submit.Submit(dispatcher.RunCommand{TaskID: t.ID, Prompt: t.Prompt})

	writeJSON(w, http.StatusAccepted, createTaskResponse{TaskID: t.ID, State: t.State})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	t, err := s.tasks.Get(r.Context(), id)
	if errors.Is(err, task.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		slog.Error("failed to load task", "task_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

type approveRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

type approveResponse struct {
	TaskID uuid.UUID  `json:"task_id"`
	State  task.State `json:"state"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid approval payload")
		return
	}

	t, err := s.tasks.Get(r.Context(), id)
	if errors.Is(err, task.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	if t.State != task.AwaitingApproval {
		writeError(w, http.StatusBadRequest, "task is not awaiting approval")
		return
	}

	if !req.Approved {
		if err := s.tasks.SetError(r.Context(), id, req.Feedback); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to record rejection")
			return
		}
		s.events.Broadcast(broadcast.Event{TaskID: id, State: task.Failed})
		writeJSON(w, http.StatusOK, approveResponse{TaskID: id, State: task.Failed})
		return
	}

	if err := s.tasks.SetState(r.Context(), id, task.Resumed); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record approval")
		return
	}
	s.submit.Submit(dispatcher.ResumeCommand{TaskID: id, Approval: workflow.Approval{Approved: true, Feedback: req.Feedback}})
	s.events.Broadcast(broadcast.Event{TaskID: id, State: task.Resumed})

	writeJSON(w, http.StatusOK, approveResponse{TaskID: id, State: task.Resumed})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	t, err := s.tasks.Get(r.Context(), id)
	if errors.Is(err, task.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}

	s.events.ServeWebSocket(w, r, id, t.State)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	healthy := true

	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, healthResponse{Status: status, Checks: checks})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusNotFound, "metrics are disabled")
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

func parseTaskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return uuid.UUID{}, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
