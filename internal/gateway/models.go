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

import "time"

// Role is one of the three privilege levels the gateway recognizes. There
// is no hierarchy richer than this set (spec Non-goal).
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

func validRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	}
	return false
}

// User is an immutable snapshot; mutators return a new value and the
// caller persists it. PasswordHash is always "salt_hex:derived_hex".
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         Role
	TOTPSecret   string // empty when TOTP is not enabled
	TOTPEnabled  bool
	BackupCodes  []string // uppercase hex, unordered, consumed on use
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  time.Time
}

// touched returns a copy of u with UpdatedAt advanced to now, a small
// helper every mutator below uses so the invariant can't be forgotten.
func (u User) touched(now time.Time) User {
	u.UpdatedAt = now
	return u
}

func (u User) recordLogin(now time.Time) User {
	u = u.touched(now)
	u.LastLoginAt = now
	return u
}

func (u User) enableTOTP(secret string, codes []string, now time.Time) User {
	u = u.touched(now)
	u.TOTPSecret = secret
	u.TOTPEnabled = true
	u.BackupCodes = append([]string(nil), codes...)
	return u
}

// useBackupCode returns a copy of u with code removed from BackupCodes and
// whether the code was present (and therefore consumed).
func (u User) useBackupCode(code string) (User, bool) {
	for i, c := range u.BackupCodes {
		if c == code {
			next := make([]string, 0, len(u.BackupCodes)-1)
			next = append(next, u.BackupCodes[:i]...)
			next = append(next, u.BackupCodes[i+1:]...)
			u.BackupCodes = next
			return u, true
		}
	}
	return u, false
}

func (u User) withPasswordHash(hash string, now time.Time) User {
	u = u.touched(now)
	u.PasswordHash = hash
	return u
}

// AgentType enumerates the kinds of backend the orchestrator can dispatch
// to.
type AgentType string

const (
	AgentTypeLocalInference AgentType = "local_inference"
	AgentTypeCodeAssistant  AgentType = "code_assistant"
	AgentTypeHostedA        AgentType = "hosted_a"
	AgentTypeHostedB        AgentType = "hosted_b"
	AgentTypeCustom         AgentType = "custom"
)

func validAgentType(t AgentType) bool {
	switch t {
	case AgentTypeLocalInference, AgentTypeCodeAssistant, AgentTypeHostedA, AgentTypeHostedB, AgentTypeCustom:
		return true
	}
	return false
}

// Agent is a registered LLM backend. Numeric ranges are enforced at create
// and update time by validateAgentFields.
type Agent struct {
	ID          string
	Name        string
	Type        AgentType
	Endpoint    string
	Model       string
	MaxTokens   int
	Temperature float64
	Priority    int
	Weight      int
	Tags        []string
	Metadata    map[string]interface{}
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HealthStatus is one of the states an agent's health row can carry.
type HealthStatus string

const (
	HealthOnline      HealthStatus = "online"
	HealthOffline     HealthStatus = "offline"
	HealthDegraded    HealthStatus = "degraded"
	HealthMaintenance HealthStatus = "maintenance"
)

// AgentHealth is the one-per-agent rolling health record.
type AgentHealth struct {
	AgentID       string
	Status        HealthStatus
	LatencyMS     int64
	SuccessRate   float64
	RequestCount  int64
	ErrorCount    int64
	LastCheckedAt time.Time
	Details       string
}

// recomputeSuccessRate applies the invariant from spec.md §3: success_rate
// is (requests-errors)/requests when requests>0, else 1.0.
func (h AgentHealth) recomputeSuccessRate() AgentHealth {
	if h.RequestCount > 0 {
		h.SuccessRate = float64(h.RequestCount-h.ErrorCount) / float64(h.RequestCount)
	} else {
		h.SuccessRate = 1.0
	}
	return h
}

// recordOutcome folds one backend call's outcome into the health row: bump
// counters, recompute success rate, set latency and status.
func (h AgentHealth) recordOutcome(success bool, latencyMS int64, now time.Time) AgentHealth {
	h.RequestCount++
	if !success {
		h.ErrorCount++
	}
	h = h.recomputeSuccessRate()
	h.LatencyMS = latencyMS
	h.LastCheckedAt = now
	if success {
		h.Status = HealthOnline
	} else {
		h.Status = HealthDegraded
	}
	return h
}

// AuditEntry is one row of the hash-chained audit log. Fingerprint and
// PreviousFingerprint are 64 lowercase hex characters (SHA-256); the
// genesis row uses the literal string "GENESIS".
type AuditEntry struct {
	ID                  string
	Action              string
	ActorUserID         string
	ActorEmail          string
	IP                  string
	UserAgent           string
	ResourceType        string
	ResourceID          string
	Details             map[string]interface{}
	PreviousFingerprint string
	Fingerprint         string
	Timestamp           time.Time
}

const genesisFingerprint = "GENESIS"

// RateLimitWindow is one tumbling-window counter row, keyed by (Key,
// WindowStart).
type RateLimitWindow struct {
	Key         string
	WindowStart time.Time
	Count       int64
}

// VaultConfig is the single-row upstream-credential configuration. The
// ciphertext carries its own IV and authentication tag (iv_hex:tag_hex:
// ciphertext_hex); it is empty when no key has ever been configured.
type VaultConfig struct {
	APIKeyCiphertext     string
	BaseURL              string
	Model                string
	MaxTokensPerRequest  int
	UpdatedAt            time.Time
}

const (
	DefaultVaultBaseURL   = "https://api.anthropic.com"
	DefaultVaultModel     = "claude-3-5-sonnet-20241022"
	DefaultVaultMaxTokens = 8192
)
