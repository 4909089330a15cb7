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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgentRouter(store *fakeStore) (*mux.Router, func() bool) {
	registry := NewAgentRegistry(store, NewAuditChain(store))
	health := NewHealthMonitor(store)
	invalidated := false
	handlers := NewAgentHandlers(registry, health, store, func() { invalidated = true })

	router := mux.NewRouter()
	router.HandleFunc("/agents", handlers.List).Methods("GET")
	router.HandleFunc("/agents", handlers.Create).Methods("POST")
	router.HandleFunc("/agents/{id}", handlers.Update).Methods("PUT")
	router.HandleFunc("/agents/{id}", handlers.Delete).Methods("DELETE")
	return router, func() bool { return invalidated }
}

func validAgentPayload() map[string]interface{} {
	return map[string]interface{}{
		"name":        "claude-primary",
		"type":        string(AgentTypeHostedA),
		"endpoint":    "https://api.anthropic.com",
		"model":       "claude-3-5-sonnet-20241022",
		"max_tokens":  4096,
		"temperature": 0.7,
		"priority":    5,
		"weight":      10,
	}
}

func TestCreateAgentHandlerPersistsAndInvalidatesCache(t *testing.T) {
	store := newFakeStore()
	router, invalidated := newTestAgentRouter(store)

	body, err := json.Marshal(validAgentPayload())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/agents", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var created Agent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "claude-primary", created.Name)
	assert.NotEmpty(t, created.ID)
	assert.True(t, invalidated(), "Create should invalidate the dispatch cache")

	stored, err := store.GetAgent(req.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "claude-primary", stored.Name)
}

func TestCreateAgentHandlerRejectsInvalidFields(t *testing.T) {
	store := newFakeStore()
	router, _ := newTestAgentRouter(store)

	payload := validAgentPayload()
	payload["weight"] = 500 // out of [1,100]
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/agents", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, string(KindValidation), envelope.Error.Code)
}

func TestUpdateAgentHandlerRejectsTypeChange(t *testing.T) {
	store := newFakeStore()
	router, _ := newTestAgentRouter(store)

	store.agents["agent-1"] = Agent{
		ID: "agent-1", Name: "seed", Type: AgentTypeHostedA, Endpoint: "https://x.example.com",
		MaxTokens: 4096, Temperature: 0.5, Priority: 5, Weight: 10,
	}

	body, err := json.Marshal(map[string]interface{}{"type": string(AgentTypeCustom)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/agents/agent-1", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDeleteAgentHandlerRemovesAgentAndInvalidatesCache(t *testing.T) {
	store := newFakeStore()
	router, invalidated := newTestAgentRouter(store)

	store.agents["agent-2"] = Agent{
		ID: "agent-2", Name: "to-delete", Type: AgentTypeHostedA, Endpoint: "https://x.example.com",
		MaxTokens: 4096, Temperature: 0.5, Priority: 5, Weight: 10,
	}

	req := httptest.NewRequest(http.MethodDelete, "/agents/agent-2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, invalidated())

	_, err := store.GetAgent(req.Context(), "agent-2")
	assert.ErrorIs(t, err, ErrStoreNotFound)
}

func TestDeleteAgentHandlerNotFound(t *testing.T) {
	store := newFakeStore()
	router, _ := newTestAgentRouter(store)

	req := httptest.NewRequest(http.MethodDelete, "/agents/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
