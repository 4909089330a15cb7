// Copyright 2025 Peanut Labs
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

package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/peanutlabs/agent-gateway/internal/shared/logger"
)

// AgentSeedFile follows the same apiVersion/kind document shape the
// platform's agent configs use, generalized to one registered Agent per
// entry instead of a planning spec.
type AgentSeedFile struct {
	APIVersion string        `yaml:"apiVersion"`
	Kind       string        `yaml:"kind"`
	Metadata   AgentSeedMeta `yaml:"metadata"`
	Spec       AgentSeedSpec `yaml:"spec"`
}

type AgentSeedMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type AgentSeedSpec struct {
	Agents []AgentSeedDef `yaml:"agents"`
}

// AgentSeedDef mirrors CreateAgentInput in YAML form.
type AgentSeedDef struct {
	Name        string                 `yaml:"name"`
	Type        string                 `yaml:"type"`
	Endpoint    string                 `yaml:"endpoint"`
	Model       string                 `yaml:"model"`
	MaxTokens   int                    `yaml:"max_tokens"`
	Temperature float64                `yaml:"temperature"`
	Priority    int                    `yaml:"priority"`
	Weight      int                    `yaml:"weight"`
	Tags        []string               `yaml:"tags,omitempty"`
	Metadata    map[string]interface{} `yaml:"metadata,omitempty"`
}

// LoadAgentSeeds reads every *.yaml/*.yml file directly under dir and
// returns the combined list of agent definitions, sorted by name so
// seeding order is deterministic across runs.
func LoadAgentSeeds(dir string) ([]AgentSeedDef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read agent config dir: %w", err)
	}

	var defs []AgentSeedDef
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}

		var file AgentSeedFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		if file.Kind != "" && file.Kind != "AgentSeed" {
			continue
		}
		defs = append(defs, file.Spec.Agents...)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// SeedAgents creates one Agent per definition via registry, skipping any
// whose name already exists, and is intended to run once at startup when
// AGENT_CONFIG_DIR is set.
func SeedAgents(ctx context.Context, registry *AgentRegistry, defs []AgentSeedDef) error {
	log := logger.New("agent_seed")

	existing, err := registry.List(ctx)
	if err != nil {
		return fmt.Errorf("list existing agents: %w", err)
	}
	byName := make(map[string]bool, len(existing))
	for _, a := range existing {
		byName[a.Name] = true
	}

	actor := AuditActor{Email: "system@seed"}
	for _, def := range defs {
		if byName[def.Name] {
			continue
		}
		_, err := registry.Create(ctx, CreateAgentInput{
			Name:        def.Name,
			Type:        AgentType(def.Type),
			Endpoint:    def.Endpoint,
			Model:       def.Model,
			MaxTokens:   def.MaxTokens,
			Temperature: def.Temperature,
			Priority:    def.Priority,
			Weight:      def.Weight,
			Tags:        def.Tags,
			Metadata:    def.Metadata,
		}, actor)
		if err != nil {
			return fmt.Errorf("seed agent %q: %w", def.Name, err)
		}
		log.Info("", "seeded agent", map[string]interface{}{"name": def.Name})
	}
	return nil
}
