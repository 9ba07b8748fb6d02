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

// Package config provides configuration loading and management for the
// workflow engine.
//
// Example config:
//
//	database:
//	  driver: sqlite
//	  database: ./.taskflow/taskflow.db
//
//	redis:
//	  addr: localhost:6379
//
//	llm:
//	  provider: groq
//	  model: llama-3.3-70b-versatile
//	  api_key: ${GROQ_API_KEY}
//
//	server:
//	  port: 8080
package config

import (
	"fmt"

	"github.com/kadirpekel/taskflow/pkg/observability"
)

// Config is the root configuration structure.
type Config struct {
	// Database configures the task record store.
	Database *DatabaseConfig `yaml:"database,omitempty"`

	// Redis configures the scratchpad and checkpoint stores.
	Redis *RedisConfig `yaml:"redis,omitempty"`

	// LLM configures the model-provider selector used by the workflow's
	// prompt analyzer, research collaborator, and writer.
	LLM *LLMConfig `yaml:"llm,omitempty"`

	// Dispatcher configures the worker pool and retry policy.
	Dispatcher *DispatcherConfig `yaml:"dispatcher,omitempty"`

	// Server configures the HTTP/REST and websocket surface.
	Server *ServerConfig `yaml:"server,omitempty"`

	// Logger configures logging behavior.
	Logger *LoggerConfig `yaml:"logger,omitempty"`

	// Observability configures Prometheus metrics collection.
	Observability *observability.Config `yaml:"observability,omitempty"`
}

// SetDefaults applies default values across the configuration tree.
func (c *Config) SetDefaults() {
	if c.Database == nil {
		c.Database = &DatabaseConfig{Driver: "sqlite", Database: "./.taskflow/taskflow.db"}
	}
	c.Database.SetDefaults()

	if c.Redis == nil {
		c.Redis = &RedisConfig{}
	}
	c.Redis.SetDefaults()

	if c.LLM == nil {
		c.LLM = &LLMConfig{}
	}
	c.LLM.SetDefaults()

	if c.Dispatcher == nil {
		c.Dispatcher = &DispatcherConfig{}
	}
	c.Dispatcher.SetDefaults()

	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	c.Server.SetDefaults()

	if c.Logger == nil {
		c.Logger = &LoggerConfig{}
	}
	c.Logger.SetDefaults()

	if c.Observability == nil {
		c.Observability = &observability.Config{}
	}
	c.Observability.SetDefaults()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database != nil {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if c.LLM != nil {
		if err := c.LLM.Validate(); err != nil {
			return fmt.Errorf("llm: %w", err)
		}
	}
	if c.Dispatcher != nil {
		if err := c.Dispatcher.Validate(); err != nil {
			return fmt.Errorf("dispatcher: %w", err)
		}
	}
	if c.Server != nil {
		if err := c.Server.Validate(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	if c.Logger != nil {
		if err := c.Logger.Validate(); err != nil {
			return fmt.Errorf("logger: %w", err)
		}
	}
	if c.Observability != nil {
		if err := c.Observability.Validate(); err != nil {
			return fmt.Errorf("observability: %w", err)
		}
	}
	return nil
}
