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

// Package scratchpad holds the ephemeral per-task key/value workspace
// shared between stages. It is a performance and visibility aid, not
// authoritative. If it is lost, research is not re-run: the writing stage,
// finding no research in memory or here, produces an error draft.
package scratchpad

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store is a Redis-backed scratchpad keyed "task:{id}:workspace", mirroring
// the original Python system's workspace client.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Store backed by an existing Redis client.
func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func workspaceKey(taskID uuid.UUID) string {
	return fmt.Sprintf("task:%s:workspace", taskID)
}

// Save shallow-merges patch into the existing workspace object and
// refreshes the TTL.
func (s *Store) Save(ctx context.Context, taskID uuid.UUID, patch map[string]any) error {
	existing, _, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if existing == nil {
		existing = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		existing[k] = v
	}

	data, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("marshal workspace: %w", err)
	}

	if err := s.client.Set(ctx, workspaceKey(taskID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save workspace: %w", err)
	}
	return nil
}

// Get retrieves the workspace object for a task. The second return value
// reports whether a workspace exists at all.
func (s *Store) Get(ctx context.Context, taskID uuid.UUID) (map[string]any, bool, error) {
	data, err := s.client.Get(ctx, workspaceKey(taskID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get workspace: %w", err)
	}

	var workspace map[string]any
	if err := json.Unmarshal(data, &workspace); err != nil {
		return nil, false, fmt.Errorf("unmarshal workspace: %w", err)
	}
	return workspace, true, nil
}

// Delete releases a task's workspace.
func (s *Store) Delete(ctx context.Context, taskID uuid.UUID) error {
	if err := s.client.Del(ctx, workspaceKey(taskID)).Err(); err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return nil
}
