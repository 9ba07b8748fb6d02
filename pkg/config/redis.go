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

// RedisConfig holds configuration for the Redis connection backing the
// scratchpad and checkpoint stores.
type RedisConfig struct {
	// Addr is the Redis server address ("host:port").
	Addr string `yaml:"addr,omitempty"`

	// Password for Redis AUTH.
	Password string `yaml:"password,omitempty"`

	// DB is the Redis logical database number.
	DB int `yaml:"db,omitempty"`

	// ScratchpadTTLSeconds is the TTL applied to scratchpad entries.
	// Default: 86400 (24h).
	ScratchpadTTLSeconds int `yaml:"scratchpad_ttl_seconds,omitempty"`
}

// SetDefaults applies default values to the Redis config.
func (c *RedisConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.ScratchpadTTLSeconds == 0 {
		c.ScratchpadTTLSeconds = 86400
	}
}

// Validate checks the Redis configuration.
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.DB < 0 {
		return fmt.Errorf("db must be non-negative")
	}
	if c.ScratchpadTTLSeconds <= 0 {
		return fmt.Errorf("scratchpad_ttl_seconds must be positive")
	}
	return nil
}
