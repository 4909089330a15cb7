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

import "net/http"

// VaultHandlers wires Vault onto /vault/*.
type VaultHandlers struct {
	vault *Vault
}

func NewVaultHandlers(vault *Vault) *VaultHandlers {
	return &VaultHandlers{vault: vault}
}

type vaultStatusResponse struct {
	Connected bool         `json:"connected"`
	Usage     *UsageStatus `json:"usage,omitempty"`
}

func (h *VaultHandlers) Status(w http.ResponseWriter, r *http.Request) {
	status := h.vault.StatusProbe(r.Context())
	writeJSON(w, http.StatusOK, vaultStatusResponse{Connected: status.Connected, Usage: status.Usage})
}

type vaultConfigResponse struct {
	HasAPIKey           bool   `json:"has_api_key"`
	BaseURL             string `json:"base_url"`
	Model               string `json:"model"`
	MaxTokensPerRequest int    `json:"max_tokens_per_request"`
}

func (h *VaultHandlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, had, err := h.vault.store.GetVaultConfig(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !had {
		writeJSON(w, http.StatusOK, vaultConfigResponse{
			BaseURL:             DefaultVaultBaseURL,
			Model:               DefaultVaultModel,
			MaxTokensPerRequest: DefaultVaultMaxTokens,
		})
		return
	}
	writeJSON(w, http.StatusOK, vaultConfigResponse{
		HasAPIKey:           cfg.APIKeyCiphertext != "",
		BaseURL:             cfg.BaseURL,
		Model:               cfg.Model,
		MaxTokensPerRequest: cfg.MaxTokensPerRequest,
	})
}

type vaultConfigRequest struct {
	APIKey              *string `json:"api_key,omitempty"`
	BaseURL             string  `json:"base_url"`
	Model               string  `json:"model"`
	MaxTokensPerRequest int     `json:"max_tokens_per_request"`
}

func (h *VaultHandlers) PutConfig(w http.ResponseWriter, r *http.Request) {
	var req vaultConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.vault.Upsert(r.Context(), UpsertInput{
		APIKey:              req.APIKey,
		BaseURL:             req.BaseURL,
		Model:               req.Model,
		MaxTokensPerRequest: req.MaxTokensPerRequest,
	}, actorFromRequest(r)); err != nil {
		writeError(w, err)
		return
	}

	h.GetConfig(w, r)
}

type vaultCompleteRequest struct {
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type vaultCompleteResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	Usage        struct {
		Prompt     int64 `json:"prompt"`
		Completion int64 `json:"completion"`
		Total      int64 `json:"total"`
	} `json:"usage"`
	FinishReason string `json:"finish_reason"`
}

func (h *VaultHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	var req vaultCompleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.vault.Complete(r.Context(), req.Messages, req.MaxTokens)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := vaultCompleteResponse{ID: result.ID, Model: result.Model, Content: result.Content, FinishReason: result.FinishReason}
	resp.Usage.Prompt = result.PromptTokens
	resp.Usage.Completion = result.CompletionTokens
	resp.Usage.Total = result.TotalTokens
	writeJSON(w, http.StatusOK, resp)
}

func (h *VaultHandlers) Usage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.vault.UsageProbe(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}
