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
	"time"
)

// AuditFilters narrows a Store.QueryAudit call. Zero values mean "no
// filter on this field".
type AuditFilters struct {
	ActorID      string
	Action       string
	ResourceType string
	From         time.Time
	To           time.Time
}

// Store is the persistence port: the gateway's one embedded transactional
// store, named per spec.md §2/§3 (users, sessions, agents, agent_health,
// audit_log, rate_limit_windows, vault_config). Everything here is
// implemented once, by store_postgres.go; the interface exists so a future
// adapter (SQLite, embedded KV) can be swapped in without touching callers.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u User) error
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UpdateUser(ctx context.Context, u User) error
	CountUsers(ctx context.Context) (int, error)

	// Agents
	CreateAgent(ctx context.Context, a Agent, h AgentHealth) error
	GetAgent(ctx context.Context, id string) (Agent, error)
	ListAgents(ctx context.Context) ([]Agent, error)
	UpdateAgent(ctx context.Context, a Agent) error
	DeleteAgent(ctx context.Context, id string) error

	// Agent health
	GetAgentHealth(ctx context.Context, agentID string) (AgentHealth, error)
	UpdateAgentHealth(ctx context.Context, h AgentHealth) error
	ListHealthyAgents(ctx context.Context) ([]Agent, error)

	// Audit chain
	LatestFingerprint(ctx context.Context) (string, error)
	AppendAudit(ctx context.Context, e AuditEntry) error
	QueryAudit(ctx context.Context, filters AuditFilters, page, limit int) (entries []AuditEntry, total int, err error)

	// Rate limiter
	IncrementRateLimit(ctx context.Context, key string, windowStart time.Time) (int64, error)
	PruneRateLimits(ctx context.Context, olderThan time.Time) error

	// Vault
	GetVaultConfig(ctx context.Context) (VaultConfig, bool, error)
	PutVaultConfig(ctx context.Context, v VaultConfig) error

	Close() error
}

// ErrStoreNotFound is returned by Store lookups that find no matching row; the
// gateway package maps it to a GatewayError with KindNotFound at the call
// site rather than leaking it across the package boundary.
var ErrStoreNotFound = newErr(KindNotFound, "not found")
