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
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader loads Config from an optional YAML file overlaid with environment
// variables, trimmed from the teacher's multi-backend (file/consul/etcd/
// zookeeper) loader to file+env only: this engine runs single-process and
// has no need to watch a distributed config store.
type Loader struct {
	koanf *koanf.Koanf
	path  string
}

// NewLoader creates a Loader for the given YAML config path. Path may be
// empty, in which case Load only applies environment variables and defaults.
func NewLoader(path string) *Loader {
	return &Loader{
		koanf: koanf.New("."),
		path:  path,
	}
}

// Load reads the YAML file (if any), overlays environment variables using
// the TASKFLOW_ prefix with "__" as the nesting separator (e.g.
// TASKFLOW_DATABASE__DRIVER maps to database.driver), applies defaults, and
// validates the result.
func (l *Loader) Load() (*Config, error) {
	if l.path != "" {
		if err := l.koanf.Load(file.Provider(l.path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", l.path, err)
		}
	}

	envProvider := env.Provider("TASKFLOW_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "TASKFLOW_")
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := l.koanf.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	cfg := &Config{}
	if err := l.koanf.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadConfig is a convenience wrapper around NewLoader(path).Load().
func LoadConfig(path string) (*Config, error) {
	return NewLoader(path).Load()
}
