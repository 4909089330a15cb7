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
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/peanutlabs/agent-gateway/internal/shared/logger"
)

const (
	vaultCompletionTimeout = 60 * time.Second
	vaultUsageTimeout      = 30 * time.Second
	vaultUsageCacheTTL     = 30 * time.Second
)

// Vault holds the single upstream credential and proxies completions and
// usage checks, per spec.md §4.E. All reads of the decrypted key happen
// inside this process; it is never handed back across the HTTP boundary.
type Vault struct {
	store  Store
	audit  *AuditChain
	cipher *vaultCipher
	client *http.Client
	log    *logger.Logger

	mu          sync.Mutex
	usageCache  *UsageStatus
	usageCached time.Time
}

func NewVault(store Store, audit *AuditChain, cipher *vaultCipher) *Vault {
	return &Vault{
		store:  store,
		audit:  audit,
		cipher: cipher,
		client: &http.Client{},
		log:    logger.New("vault"),
	}
}

// UpsertInput is what a caller supplies to PUT the vault configuration. A
// nil APIKey retains the existing ciphertext.
type UpsertInput struct {
	APIKey              *string
	BaseURL             string
	Model               string
	MaxTokensPerRequest int
}

// Upsert re-encrypts the API key only when one is supplied; non-credential
// fields are always overwritten with documented defaults filled in when
// the caller leaves them blank.
func (v *Vault) Upsert(ctx context.Context, in UpsertInput, actor AuditActor) error {
	existing, had, err := v.store.GetVaultConfig(ctx)
	if err != nil {
		return InternalError("read vault config", err)
	}

	cfg := VaultConfig{
		BaseURL:             in.BaseURL,
		Model:               in.Model,
		MaxTokensPerRequest: in.MaxTokensPerRequest,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultVaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultVaultModel
	}
	if cfg.MaxTokensPerRequest == 0 {
		cfg.MaxTokensPerRequest = DefaultVaultMaxTokens
	}

	if in.APIKey != nil {
		ciphertext, err := v.cipher.seal(*in.APIKey)
		if err != nil {
			return InternalError("encrypt api key", err)
		}
		cfg.APIKeyCiphertext = ciphertext
	} else if had {
		cfg.APIKeyCiphertext = existing.APIKeyCiphertext
	}

	cfg.UpdatedAt = time.Now().UTC()
	if err := v.store.PutVaultConfig(ctx, cfg); err != nil {
		return InternalError("persist vault config", err)
	}

	v.mu.Lock()
	v.usageCache = nil
	v.mu.Unlock()

	return v.audit.Append(ctx, "settings.updated", "vault", "", actor, map[string]interface{}{
		"base_url":    cfg.BaseURL,
		"model":       cfg.Model,
		"key_rotated": in.APIKey != nil,
	})
}

// CompletionResult is the normalized shape spec.md §4.E maps the upstream
// response into.
type CompletionResult struct {
	ID               string
	Model            string
	Content          string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	FinishReason     string
}

type anthropicMessagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicMessagesResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// Complete decrypts the configured key, clamps max_tokens to the
// configured ceiling, and forwards a normalized completion request.
func (v *Vault) Complete(ctx context.Context, messages []chatMessage, requestedMaxTokens int) (CompletionResult, error) {
	cfg, had, err := v.store.GetVaultConfig(ctx)
	if err != nil {
		return CompletionResult{}, InternalError("read vault config", err)
	}
	if !had || cfg.APIKeyCiphertext == "" {
		return CompletionResult{}, ExternalServiceError("vault", "no api key configured", nil)
	}

	key, err := v.cipher.open(cfg.APIKeyCiphertext)
	if err != nil {
		return CompletionResult{}, err
	}

	maxTokens := requestedMaxTokens
	if maxTokens <= 0 || maxTokens > cfg.MaxTokensPerRequest {
		maxTokens = cfg.MaxTokensPerRequest
	}

	payload := anthropicMessagesRequest{Model: cfg.Model, MaxTokens: maxTokens, Messages: messages}
	body, err := json.Marshal(payload)
	if err != nil {
		return CompletionResult{}, InternalError("marshal completion request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, vaultCompletionTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, fmt.Sprintf("%s/v1/messages", cfg.BaseURL), bytes.NewReader(body))
	if err != nil {
		return CompletionResult{}, InternalError("build completion request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", key)

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return CompletionResult{}, ExternalServiceError("vault", "completion request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return CompletionResult{}, ExternalServiceError("vault", fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, string(raw)), nil)
	}

	var parsed anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return CompletionResult{}, ExternalServiceError("vault", "malformed upstream response", err)
	}

	content := ""
	if len(parsed.Content) > 0 {
		content = parsed.Content[0].Text
	}

	result := CompletionResult{
		ID:               parsed.ID,
		Model:            parsed.Model,
		Content:          content,
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
		TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		FinishReason:     parsed.StopReason,
	}

	return result, nil
}

// UsageStatus is what UsageProbe and StatusProbe report.
type UsageStatus struct {
	Used       int64
	Limit      int64
	ResetAt    time.Time
	Percentage int
}

type usageProbeResponse struct {
	Used    int64  `json:"used"`
	Limit   int64  `json:"limit"`
	ResetAt string `json:"reset_at"`
}

// UsageProbe hits the upstream usage endpoint, caching results for
// vaultUsageCacheTTL so a chatty status page doesn't hammer the upstream.
func (v *Vault) UsageProbe(ctx context.Context) (UsageStatus, error) {
	v.mu.Lock()
	if v.usageCache != nil && time.Since(v.usageCached) < vaultUsageCacheTTL {
		cached := *v.usageCache
		v.mu.Unlock()
		return cached, nil
	}
	v.mu.Unlock()

	cfg, had, err := v.store.GetVaultConfig(ctx)
	if err != nil {
		return UsageStatus{}, InternalError("read vault config", err)
	}
	if !had || cfg.APIKeyCiphertext == "" {
		return UsageStatus{}, ExternalServiceError("vault", "no api key configured", nil)
	}

	key, err := v.cipher.open(cfg.APIKeyCiphertext)
	if err != nil {
		return UsageStatus{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, vaultUsageTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fmt.Sprintf("%s/v1/usage", cfg.BaseURL), nil)
	if err != nil {
		return UsageStatus{}, InternalError("build usage request", err)
	}
	httpReq.Header.Set("x-api-key", key)

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return UsageStatus{}, ExternalServiceError("vault", "usage request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return UsageStatus{}, ExternalServiceError("vault", fmt.Sprintf("upstream returned %d", resp.StatusCode), nil)
	}

	var parsed usageProbeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return UsageStatus{}, ExternalServiceError("vault", "malformed usage response", err)
	}

	resetAt, _ := time.Parse(time.RFC3339, parsed.ResetAt)

	pct := 0
	if parsed.Limit > 0 {
		pct = int(math.Round(float64(parsed.Used) / float64(parsed.Limit) * 100))
	}

	status := UsageStatus{Used: parsed.Used, Limit: parsed.Limit, ResetAt: resetAt, Percentage: pct}

	v.mu.Lock()
	v.usageCache = &status
	v.usageCached = time.Now()
	v.mu.Unlock()

	return status, nil
}

// StatusResult is the connectivity summary returned by StatusProbe.
type StatusResult struct {
	Connected bool
	Usage     *UsageStatus
}

// StatusProbe never leaks decryption or upstream errors to the boundary:
// any failure just reads as disconnected.
func (v *Vault) StatusProbe(ctx context.Context) StatusResult {
	_, had, err := v.store.GetVaultConfig(ctx)
	if err != nil || !had {
		return StatusResult{Connected: false}
	}

	usage, err := v.UsageProbe(ctx)
	if err != nil {
		return StatusResult{Connected: false}
	}
	return StatusResult{Connected: true, Usage: &usage}
}
