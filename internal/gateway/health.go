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
	"net/http"
	"time"

	"github.com/peanutlabs/agent-gateway/internal/shared/logger"
)

const (
	healthProbeTimeout = 5 * time.Second
	healthSweepPeriod  = 30 * time.Second
)

// HealthMonitor implements the probing rules from spec.md §4.B: a GET to
// the agent's root, 2xx means online, any other response means degraded,
// and a timeout or network failure means offline.
type HealthMonitor struct {
	store  Store
	client *http.Client
	log    *logger.Logger
}

func NewHealthMonitor(store Store) *HealthMonitor {
	return &HealthMonitor{
		store:  store,
		client: &http.Client{Timeout: healthProbeTimeout},
		log:    logger.New("health"),
	}
}

// Probe performs one on-demand check against agent and persists the
// resulting AgentHealth row.
func (m *HealthMonitor) Probe(ctx context.Context, a Agent) (AgentHealth, error) {
	existing, err := m.store.GetAgentHealth(ctx, a.ID)
	if err != nil {
		existing = AgentHealth{AgentID: a.ID, SuccessRate: 1.0}
	}

	status, latencyMS := m.probeAgent(ctx, a.Endpoint)

	now := time.Now().UTC()
	existing.Status = status
	existing.LatencyMS = latencyMS
	existing.LastCheckedAt = now
	existing = existing.recomputeSuccessRate()

	if err := m.store.UpdateAgentHealth(ctx, existing); err != nil {
		return AgentHealth{}, InternalError("persist agent health", err)
	}
	return existing, nil
}

// probeAgent issues a bare GET at endpoint and classifies the outcome.
// Network failures and timeouts both read as offline, since from the
// caller's perspective there is no way to tell them apart without the
// backend's cooperation.
func (m *HealthMonitor) probeAgent(ctx context.Context, endpoint string) (HealthStatus, int64) {
	reqCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return HealthOffline, 0
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return HealthOffline, latency
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return HealthOnline, latency
	}
	return HealthDegraded, latency
}

// RunSweep probes every registered agent once. Intended to be called from
// a ticker loop in run.go every healthSweepPeriod.
func (m *HealthMonitor) RunSweep(ctx context.Context) {
	agents, err := m.store.ListAgents(ctx)
	if err != nil {
		m.log.Warn("", "health sweep: list agents failed", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, a := range agents {
		if _, err := m.Probe(ctx, a); err != nil {
			m.log.Warn("", "health sweep: probe failed", map[string]interface{}{"agent_id": a.ID, "error": err.Error()})
		}
	}
}
