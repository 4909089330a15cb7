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
	"time"
)

// DispatchHandlers wires Dispatcher onto /openclaw/dispatch.
type DispatchHandlers struct {
	dispatcher *Dispatcher
}

func NewDispatchHandlers(dispatcher *Dispatcher) *DispatchHandlers {
	return &DispatchHandlers{dispatcher: dispatcher}
}

type dispatchWireRequest struct {
	AgentID   string        `json:"agent_id,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Message   string        `json:"message"`
	Context   []chatMessage `json:"context,omitempty"`
}

type dispatchWireResponse struct {
	RequestID  string `json:"request_id"`
	AgentID    string `json:"agent_id"`
	SessionID  string `json:"session_id,omitempty"`
	Message    string `json:"message"`
	Model      string `json:"model"`
	TokensUsed int64  `json:"tokens_used"`
	LatencyMS  int64  `json:"latency_ms"`
	Timestamp  string `json:"timestamp"`
}

func (h *DispatchHandlers) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchWireRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Message == "" {
		writeError(w, ValidationError("message is required"))
		return
	}

	start := time.Now()
	result, err := h.dispatcher.Dispatch(r.Context(), DispatchRequest{
		AgentID: req.AgentID,
		Context: req.Context,
		Message: req.Message,
	}, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dispatchWireResponse{
		RequestID:  requestIDFromContext(r.Context()),
		AgentID:    result.AgentID,
		SessionID:  req.SessionID,
		Message:    result.Content,
		Model:      result.Model,
		TokensUsed: result.TokensUsed,
		LatencyMS:  time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}
