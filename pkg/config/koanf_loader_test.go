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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoaderLoadsFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "test.yaml")

	configYAML := `
database:
  driver: postgres
  host: db.internal
  database: taskflow
llm:
  provider: openai
  api_key: test-key
server:
  port: 9191
`
	if err := os.WriteFile(configFile, []byte(configYAML), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	cfg, err := NewLoader(configFile).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want db.internal", cfg.Database.Host)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	// Redis section absent from the file, defaults still applied.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want localhost:6379", cfg.Redis.Addr)
	}
}

func TestLoaderEnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "test.yaml")

	configYAML := `
database:
  driver: sqlite
  database: ./local.db
llm:
  provider: openai
  api_key: test-key
server:
  port: 8080
`
	if err := os.WriteFile(configFile, []byte(configYAML), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	t.Setenv("TASKFLOW_SERVER__PORT", "7070")

	cfg, err := NewLoader(configFile).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070 (env override)", cfg.Server.Port)
	}
}

func TestLoaderWithNoFileAppliesDefaults(t *testing.T) {
	t.Setenv("TASKFLOW_LLM__PROVIDER", "openai")
	t.Setenv("TASKFLOW_LLM__API_KEY", "test-key")

	cfg, err := NewLoader("").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
}

func TestLoaderRejectsInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "bad.yaml")

	configYAML := `
database:
  driver: oracle
  database: x
llm:
  provider: openai
  api_key: test-key
`
	if err := os.WriteFile(configFile, []byte(configYAML), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if _, err := NewLoader(configFile).Load(); err == nil {
		t.Error("Load() error = nil, want error for invalid driver")
	}
}
