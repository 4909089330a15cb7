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
	"net/url"
	"strings"
	"time"

	"github.com/peanutlabs/agent-gateway/internal/shared/logger"
)

// AgentRegistry implements the CRUD and validation rules for agents from
// spec.md §3/§4.B.
type AgentRegistry struct {
	store Store
	audit *AuditChain
	log   *logger.Logger
}

func NewAgentRegistry(store Store, audit *AuditChain) *AgentRegistry {
	return &AgentRegistry{store: store, audit: audit, log: logger.New("agents")}
}

// CreateAgentInput is the subset of Agent a caller supplies; ID and
// timestamps are assigned by CreateAgent.
type CreateAgentInput struct {
	Name        string                 `json:"name"`
	Type        AgentType              `json:"type"`
	Endpoint    string                 `json:"endpoint"`
	Model       string                 `json:"model"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Temperature float64                `json:"temperature"`
	Priority    int                    `json:"priority,omitempty"`
	Weight      int                    `json:"weight,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// validateAgentFields enforces the numeric and shape invariants from
// spec.md §3: name 2-64 chars, endpoint a parseable absolute URL, type in
// the enum, max_tokens in [1,200000], temperature in [0,2], priority in
// [1,10], weight in [1,100].
func validateAgentFields(name string, typ AgentType, endpoint string, maxTokens int, temperature float64, priority, weight int) error {
	if l := len(strings.TrimSpace(name)); l < 2 || l > 64 {
		return ValidationError("name must be between 2 and 64 characters")
	}
	if !validAgentType(typ) {
		return ValidationErrorf("invalid agent type %q", typ)
	}
	u, err := url.ParseRequestURI(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ValidationError("endpoint must be an absolute URL")
	}
	if maxTokens < 1 || maxTokens > 200000 {
		return ValidationError("max_tokens must be between 1 and 200000")
	}
	if temperature < 0 || temperature > 2 {
		return ValidationError("temperature must be between 0 and 2")
	}
	if priority < 1 || priority > 10 {
		return ValidationError("priority must be between 1 and 10")
	}
	if weight < 1 || weight > 100 {
		return ValidationError("weight must be between 1 and 100")
	}
	return nil
}

// Create validates input, assigns defaults, persists the agent and its
// initial health row in one transaction, and appends agent.created.
func (r *AgentRegistry) Create(ctx context.Context, in CreateAgentInput, actor AuditActor) (Agent, error) {
	if in.MaxTokens == 0 {
		in.MaxTokens = 4096
	}
	if in.Priority == 0 {
		in.Priority = 5
	}
	if in.Weight == 0 {
		in.Weight = 10
	}

	if err := validateAgentFields(in.Name, in.Type, in.Endpoint, in.MaxTokens, in.Temperature, in.Priority, in.Weight); err != nil {
		return Agent{}, err
	}

	now := time.Now().UTC()
	a := Agent{
		ID:          newID(),
		Name:        strings.TrimSpace(in.Name),
		Type:        in.Type,
		Endpoint:    in.Endpoint,
		Model:       in.Model,
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
		Priority:    in.Priority,
		Weight:      in.Weight,
		Tags:        in.Tags,
		Metadata:    in.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	h := AgentHealth{
		AgentID:       a.ID,
		Status:        HealthOffline,
		SuccessRate:   1.0,
		LastCheckedAt: now,
	}

	if err := r.store.CreateAgent(ctx, a, h); err != nil {
		return Agent{}, err
	}

	if err := r.audit.Append(ctx, "agent.created", "agent", a.ID, actor, map[string]interface{}{
		"name": a.Name,
		"type": a.Type,
	}); err != nil {
		return Agent{}, err
	}
	return a, nil
}

func (r *AgentRegistry) Get(ctx context.Context, id string) (Agent, error) {
	a, err := r.store.GetAgent(ctx, id)
	if err != nil {
		return Agent{}, NotFoundError("agent")
	}
	return a, nil
}

func (r *AgentRegistry) List(ctx context.Context) ([]Agent, error) {
	return r.store.ListAgents(ctx)
}

// UpdateAgentInput is a partial update: nil/zero fields leave the
// existing value untouched. Type, if supplied, must match the agent's
// current type — spec.md §6 forbids changing it via update.
type UpdateAgentInput struct {
	Name        *string                `json:"name,omitempty"`
	Type        *AgentType             `json:"type,omitempty"`
	Endpoint    *string                `json:"endpoint,omitempty"`
	Model       *string                `json:"model,omitempty"`
	MaxTokens   *int                   `json:"max_tokens,omitempty"`
	Temperature *float64               `json:"temperature,omitempty"`
	Priority    *int                   `json:"priority,omitempty"`
	Weight      *int                   `json:"weight,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (r *AgentRegistry) Update(ctx context.Context, id string, in UpdateAgentInput, actor AuditActor) (Agent, error) {
	existing, err := r.store.GetAgent(ctx, id)
	if err != nil {
		return Agent{}, NotFoundError("agent")
	}

	if in.Type != nil && *in.Type != existing.Type {
		return Agent{}, ValidationError("agent type cannot be changed")
	}
	if in.Name != nil {
		existing.Name = strings.TrimSpace(*in.Name)
	}
	if in.Endpoint != nil {
		existing.Endpoint = *in.Endpoint
	}
	if in.Model != nil {
		existing.Model = *in.Model
	}
	if in.MaxTokens != nil {
		existing.MaxTokens = *in.MaxTokens
	}
	if in.Temperature != nil {
		existing.Temperature = *in.Temperature
	}
	if in.Priority != nil {
		existing.Priority = *in.Priority
	}
	if in.Weight != nil {
		existing.Weight = *in.Weight
	}
	if in.Tags != nil {
		existing.Tags = in.Tags
	}
	if in.Metadata != nil {
		existing.Metadata = in.Metadata
	}

	if err := validateAgentFields(existing.Name, existing.Type, existing.Endpoint, existing.MaxTokens, existing.Temperature, existing.Priority, existing.Weight); err != nil {
		return Agent{}, err
	}

	existing.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateAgent(ctx, existing); err != nil {
		return Agent{}, err
	}
	if err := r.audit.Append(ctx, "agent.updated", "agent", existing.ID, actor, map[string]interface{}{
		"name": existing.Name,
	}); err != nil {
		return Agent{}, err
	}
	return existing, nil
}

func (r *AgentRegistry) Delete(ctx context.Context, id string, actor AuditActor) error {
	if _, err := r.store.GetAgent(ctx, id); err != nil {
		return NotFoundError("agent")
	}
	if err := r.store.DeleteAgent(ctx, id); err != nil {
		return InternalError("delete agent", err)
	}
	return r.audit.Append(ctx, "agent.deleted", "agent", id, actor, nil)
}
