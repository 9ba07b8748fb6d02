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

// Package checkpoint provides durable snapshots of a suspended workflow
// execution, keyed by task id, that let the stage graph engine suspend at
// the human-approval stage and resume across process restarts.
//
// The checkpoint is authoritative; the scratchpad (pkg/scratchpad) is only
// a performance aid. Unlike the scratchpad, a checkpoint store does not
// interpret its payload: the engine owns serialization of its own
// WorkflowState, and the store persists the resulting blob verbatim under
// "checkpoint:{id}".
package checkpoint

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store persists opaque checkpoint blobs in Redis. At most one live
// checkpoint exists per task at any time: Save always overwrites, never
// appends.
type Store struct {
	client *redis.Client
}

// New creates a Store backed by an existing Redis client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func checkpointKey(taskID uuid.UUID) string {
	return fmt.Sprintf("checkpoint:%s", taskID)
}

// Save persists (overwriting any prior checkpoint) the serialized
// workflow state for a task. Checkpoints have no TTL: they live exactly as
// long as the suspension they describe, and are removed explicitly on
// resume or terminal completion.
func (s *Store) Save(ctx context.Context, taskID uuid.UUID, blob []byte) error {
	if err := s.client.Set(ctx, checkpointKey(taskID), blob, 0).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load retrieves the checkpoint blob for a task. The second return value
// reports whether a checkpoint exists.
func (s *Store) Load(ctx context.Context, taskID uuid.UUID) ([]byte, bool, error) {
	blob, err := s.client.Get(ctx, checkpointKey(taskID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load checkpoint: %w", err)
	}
	return blob, true, nil
}

// Delete removes a task's checkpoint, used on resume (once the suspension
// is consumed) and on terminal completion or failure.
func (s *Store) Delete(ctx context.Context, taskID uuid.UUID) error {
	if err := s.client.Del(ctx, checkpointKey(taskID)).Err(); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Exists reports whether a live checkpoint exists for a task, without
// transferring its payload.
func (s *Store) Exists(ctx context.Context, taskID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, checkpointKey(taskID)).Result()
	if err != nil {
		return false, fmt.Errorf("check checkpoint existence: %w", err)
	}
	return n > 0, nil
}
