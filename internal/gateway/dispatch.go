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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/peanutlabs/agent-gateway/internal/shared/logger"
)

const (
	backendCallTimeout   = 30 * time.Second
	healthCacheFreshness = 30 * time.Second
)

// chatMessage is one turn of the conversation forwarded to a backend.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DispatchRequest is the input to Dispatcher.Dispatch.
type DispatchRequest struct {
	AgentID  string // optional explicit target, bypasses weighted selection
	Context  []chatMessage
	Message  string
}

// DispatchResult is what the caller sees back.
type DispatchResult struct {
	AgentID    string
	Model      string
	Content    string
	TokensUsed int64
}

// weightedAgent augments a healthy Agent with the mutable current_weight
// the smooth weighted round-robin algorithm needs between selections.
type weightedAgent struct {
	agent         Agent
	currentWeight int
}

// Dispatcher implements agent selection (spec.md §4.D's "Nginx" smooth
// weighted round-robin), the backend call, and metric reconciliation.
type Dispatcher struct {
	store Store
	audit *AuditChain
	log   *logger.Logger
	client *http.Client

	mu          sync.Mutex
	cache       []*weightedAgent
	cachedAt    time.Time
}

func NewDispatcher(store Store, audit *AuditChain) *Dispatcher {
	return &Dispatcher{
		store:  store,
		audit:  audit,
		log:    logger.New("dispatch"),
		client: &http.Client{Timeout: backendCallTimeout},
	}
}

// InvalidateCache forces the next selection to reload from persistence;
// callers mutating the agent registry invoke this immediately.
func (d *Dispatcher) InvalidateCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = nil
	d.cachedAt = time.Time{}
}

// refreshCacheLocked reloads the healthy-agent list from persistence if
// the cache is stale, preserving each surviving agent's current_weight so
// the round-robin sequence stays smooth across refreshes.
func (d *Dispatcher) refreshCacheLocked(ctx context.Context) error {
	if d.cache != nil && time.Since(d.cachedAt) < healthCacheFreshness {
		return nil
	}

	healthy, err := d.store.ListHealthyAgents(ctx)
	if err != nil {
		return InternalError("list healthy agents", err)
	}

	previous := make(map[string]int, len(d.cache))
	for _, w := range d.cache {
		previous[w.agent.ID] = w.currentWeight
	}

	next := make([]*weightedAgent, 0, len(healthy))
	for _, a := range healthy {
		next = append(next, &weightedAgent{agent: a, currentWeight: previous[a.ID]})
	}

	d.cache = next
	d.cachedAt = time.Now()
	return nil
}

// selectAgent runs one step of the smooth weighted round-robin algorithm.
func (d *Dispatcher) selectAgent(ctx context.Context) (Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.refreshCacheLocked(ctx); err != nil {
		return Agent{}, err
	}
	if len(d.cache) == 0 {
		return Agent{}, ExternalServiceError("orchestrator", "no healthy agents available", nil)
	}

	total := 0
	for _, w := range d.cache {
		total += w.agent.Weight
	}

	var best *weightedAgent
	for _, w := range d.cache {
		w.currentWeight += w.agent.Weight
		if best == nil || w.currentWeight > best.currentWeight {
			best = w
		}
	}
	best.currentWeight -= total
	return best.agent, nil
}

// Dispatch selects (or resolves an explicit target), forwards the call,
// reconciles metrics, and appends one agent.request audit entry. Append
// failure is treated as a failure of the whole operation (spec's ordering
// guarantee: metric update happens-before audit append happens-before
// response) even though the backend call itself already succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest, actor AuditActor) (DispatchResult, error) {
	var agent Agent
	var err error

	if req.AgentID != "" {
		agent, err = d.store.GetAgent(ctx, req.AgentID)
		if err != nil {
			return DispatchResult{}, NotFoundError("agent")
		}
	} else {
		agent, err = d.selectAgent(ctx)
		if err != nil {
			return DispatchResult{}, err
		}
	}

	start := time.Now()
	content, tokens, callErr := d.callBackend(ctx, agent, req)
	latencyMS := time.Since(start).Milliseconds()

	d.reconcile(ctx, agent.ID, callErr == nil, latencyMS)

	details := map[string]interface{}{
		"agent_id":   agent.ID,
		"latency_ms": latencyMS,
	}
	if callErr != nil {
		details["error"] = callErr.Error()
		if err := d.audit.Append(ctx, "agent.request", "agent", agent.ID, actor, details); err != nil {
			d.log.Warn("", "audit append failed after failed dispatch", map[string]interface{}{"error": err.Error()})
		}
		return DispatchResult{}, callErr
	}

	details["tokens_used"] = tokens
	if err := d.audit.Append(ctx, "agent.request", "agent", agent.ID, actor, details); err != nil {
		return DispatchResult{}, InternalError("audit append", err)
	}

	return DispatchResult{AgentID: agent.ID, Model: agent.Model, Content: content, TokensUsed: tokens}, nil
}

type backendChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Options  struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
	Stream bool `json:"stream"`
}

type backendChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int64 `json:"prompt_eval_count"`
	EvalCount       int64 `json:"eval_count"`
}

func (d *Dispatcher) callBackend(ctx context.Context, agent Agent, req DispatchRequest) (string, int64, error) {
	payload := backendChatRequest{
		Model:    agent.Model,
		Messages: append(append([]chatMessage(nil), req.Context...), chatMessage{Role: "user", Content: req.Message}),
	}
	payload.Options.Temperature = agent.Temperature

	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, InternalError("marshal backend request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, backendCallTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, fmt.Sprintf("%s/api/chat", agent.Endpoint), bytes.NewReader(body))
	if err != nil {
		return "", 0, InternalError("build backend request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return "", 0, ExternalServiceError(agent.Name, "backend request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", 0, ExternalServiceError(agent.Name, fmt.Sprintf("backend returned %d: %s", resp.StatusCode, string(raw)), nil)
	}

	var parsed backendChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, ExternalServiceError(agent.Name, "malformed backend response", err)
	}

	return parsed.Message.Content, parsed.PromptEvalCount + parsed.EvalCount, nil
}

func (d *Dispatcher) reconcile(ctx context.Context, agentID string, success bool, latencyMS int64) {
	h, err := d.store.GetAgentHealth(ctx, agentID)
	if err != nil {
		d.log.Warn("", "reconcile: health row missing", map[string]interface{}{"agent_id": agentID})
		return
	}
	h = h.recordOutcome(success, latencyMS, time.Now().UTC())
	if err := d.store.UpdateAgentHealth(ctx, h); err != nil {
		d.log.Warn("", "reconcile: health update failed", map[string]interface{}{"agent_id": agentID, "error": err.Error()})
	}
}
