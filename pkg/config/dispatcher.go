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

import "fmt"

// DispatcherConfig configures the background worker pool that runs stage
// graph executions off the HTTP request path.
type DispatcherConfig struct {
	// Workers is the number of concurrent worker executors.
	// Default: 4
	Workers int `yaml:"workers,omitempty"`

	// QueueSize bounds the number of pending commands per worker.
	// Default: 64
	QueueSize int `yaml:"queue_size,omitempty"`

	// MaxRetries is the number of retry attempts for a failing engine
	// invocation before the task is marked Failed.
	// Default: 3
	MaxRetries int `yaml:"max_retries,omitempty"`

	// BaseRetryDelaySeconds is the base delay for exponential backoff
	// between dispatcher retries.
	// Default: 2
	BaseRetryDelaySeconds int `yaml:"base_retry_delay_seconds,omitempty"`
}

// SetDefaults applies default values to the dispatcher config.
func (c *DispatcherConfig) SetDefaults() {
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.QueueSize == 0 {
		c.QueueSize = 64
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseRetryDelaySeconds == 0 {
		c.BaseRetryDelaySeconds = 2
	}
}

// Validate checks the dispatcher configuration.
func (c *DispatcherConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.BaseRetryDelaySeconds <= 0 {
		return fmt.Errorf("base_retry_delay_seconds must be positive")
	}
	return nil
}
