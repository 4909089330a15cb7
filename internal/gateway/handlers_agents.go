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
	"net/http"

	"github.com/gorilla/mux"
)

// AgentHandlers wires AgentRegistry and HealthMonitor onto /agents/* per
// spec.md §6.
type AgentHandlers struct {
	registry *AgentRegistry
	health   *HealthMonitor
	store    Store
	invalidateDispatchCache func()
}

func NewAgentHandlers(registry *AgentRegistry, health *HealthMonitor, store Store, invalidate func()) *AgentHandlers {
	return &AgentHandlers{registry: registry, health: health, store: store, invalidateDispatchCache: invalidate}
}

type agentWithHealth struct {
	Agent  Agent       `json:"agent"`
	Health AgentHealth `json:"health"`
}

func (h *AgentHandlers) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.registry.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]agentWithHealth, 0, len(agents))
	for _, a := range agents {
		health, err := h.store.GetAgentHealth(r.Context(), a.ID)
		if err != nil {
			health = AgentHealth{AgentID: a.ID, Status: HealthOffline, SuccessRate: 1.0}
		}
		out = append(out, agentWithHealth{Agent: a, Health: health})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AgentHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateAgentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	a, err := h.registry.Create(r.Context(), in, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.invalidateDispatchCache()
	writeJSON(w, http.StatusCreated, a)
}

func (h *AgentHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var in UpdateAgentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	a, err := h.registry.Update(r.Context(), id, in, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.invalidateDispatchCache()
	writeJSON(w, http.StatusOK, a)
}

func (h *AgentHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.registry.Delete(r.Context(), id, actorFromRequest(r)); err != nil {
		writeError(w, err)
		return
	}
	h.invalidateDispatchCache()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AgentHandlers) ForceHealth(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := h.registry.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.health.Probe(r.Context(), a)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
