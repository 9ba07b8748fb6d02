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

package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a task id has no matching record.
var ErrNotFound = errors.New("task not found")

// Store persists Task records in a relational database. Query text is
// built per-dialect (postgres, mysql, sqlite) since placeholder syntax and
// upsert clauses differ between them.
type Store struct {
	db      *sql.DB
	dialect string
}

// NewStore wraps an open *sql.DB for the given dialect ("postgres",
// "mysql", or "sqlite").
func NewStore(db *sql.DB, dialect string) *Store {
	return &Store{db: db, dialect: dialect}
}

// EnsureSchema creates the tasks table if it does not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	var ddl string
	switch s.dialect {
	case "postgres":
		ddl = `CREATE TABLE IF NOT EXISTS tasks (
			id UUID PRIMARY KEY,
			prompt TEXT NOT NULL,
			state VARCHAR(50) NOT NULL,
			result TEXT,
			error TEXT,
			activity_log JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`
	case "mysql":
		ddl = `CREATE TABLE IF NOT EXISTS tasks (
			id CHAR(36) PRIMARY KEY,
			prompt TEXT NOT NULL,
			state VARCHAR(50) NOT NULL,
			result TEXT,
			error TEXT,
			activity_log JSON NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`
	default: // sqlite
		ddl = `CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			prompt TEXT NOT NULL,
			state TEXT NOT NULL,
			result TEXT,
			error TEXT,
			activity_log TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`
	}
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("ensure tasks schema: %w", err)
	}
	return nil
}

// ph returns the positional placeholder for argument index i (1-based),
// which is "$1", "$2", ... for postgres and "?" for mysql/sqlite.
func (s *Store) ph(i int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// Create inserts a new task record.
func (s *Store) Create(ctx context.Context, t *Task) error {
	logJSON, err := json.Marshal(t.ActivityLog)
	if err != nil {
		return fmt.Errorf("marshal activity log: %w", err)
	}

	query := fmt.Sprintf(
		`INSERT INTO tasks (id, prompt, state, result, error, activity_log, created_at, updated_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8),
	)
	_, err = s.db.ExecContext(ctx, query,
		t.ID.String(), t.Prompt, string(t.State), nullString(t.Result), nullString(t.Error),
		string(logJSON), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// Get retrieves a task by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	query := fmt.Sprintf(
		`SELECT id, prompt, state, result, error, activity_log, created_at, updated_at
		 FROM tasks WHERE id = %s`, s.ph(1))

	row := s.db.QueryRowContext(ctx, query, id.String())
	return scanTask(row)
}

// SetState transitions a task to a new state, validating the edge. It is
// the caller's responsibility to ensure state-specific fields (result,
// error) are set alongside terminal transitions via SetResult/SetError.
func (s *Store) SetState(ctx context.Context, id uuid.UUID, next State) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !current.State.CanTransition(next) {
		return &ErrInvalidTransition{From: current.State, To: next}
	}

	query := fmt.Sprintf(`UPDATE tasks SET state = %s, updated_at = %s WHERE id = %s`,
		s.ph(1), s.ph(2), s.ph(3))
	_, err = s.db.ExecContext(ctx, query, string(next), time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("set task state: %w", err)
	}
	return nil
}

// SetResult marks a task Completed with the given result text.
func (s *Store) SetResult(ctx context.Context, id uuid.UUID, result string) error {
	if err := s.SetState(ctx, id, Completed); err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE tasks SET result = %s, updated_at = %s WHERE id = %s`,
		s.ph(1), s.ph(2), s.ph(3))
	_, err := s.db.ExecContext(ctx, query, result, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("set task result: %w", err)
	}
	return nil
}

// SetError marks a task Failed with the given diagnostic message.
func (s *Store) SetError(ctx context.Context, id uuid.UUID, message string) error {
	if err := s.SetState(ctx, id, Failed); err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE tasks SET error = %s, updated_at = %s WHERE id = %s`,
		s.ph(1), s.ph(2), s.ph(3))
	_, err := s.db.ExecContext(ctx, query, message, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("set task error: %w", err)
	}
	return nil
}

// AppendLog appends an activity log entry. It reads the record and then
// issues an UPDATE, with no transaction and no row lock. The sqlite pool
// has a single connection; on postgres/mysql, concurrent writes to the same
// task are kept apart only by the dispatcher routing each task id to one
// worker, and the store itself does not serialize writers.
func (s *Store) AppendLog(ctx context.Context, id uuid.UUID, agent, action string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	entry := LogEntry{Agent: agent, Action: action, Timestamp: time.Now().UTC()}
	current.ActivityLog = append(current.ActivityLog, entry)

	logJSON, err := json.Marshal(current.ActivityLog)
	if err != nil {
		return fmt.Errorf("marshal activity log: %w", err)
	}

	query := fmt.Sprintf(`UPDATE tasks SET activity_log = %s, updated_at = %s WHERE id = %s`,
		s.ph(1), s.ph(2), s.ph(3))
	_, err = s.db.ExecContext(ctx, query, string(logJSON), time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("append activity log: %w", err)
	}
	return nil
}

// rowScanner abstracts *sql.Row so scanTask works for both QueryRow and
// sqlmock-driven rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		idStr    string
		prompt   string
		state    string
		result   sql.NullString
		errMsg   sql.NullString
		logJSON  string
		created  time.Time
		updated  time.Time
	)

	if err := row.Scan(&idStr, &prompt, &state, &result, &errMsg, &logJSON, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse task id: %w", err)
	}

	var log []LogEntry
	if logJSON != "" {
		if err := json.Unmarshal([]byte(logJSON), &log); err != nil {
			return nil, fmt.Errorf("unmarshal activity log: %w", err)
		}
	}

	return &Task{
		ID:          id,
		Prompt:      prompt,
		State:       State(state),
		Result:      result.String,
		Error:       errMsg.String,
		ActivityLog: log,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
