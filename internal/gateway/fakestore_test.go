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
	"sync"
	"time"
)

// fakeStore is a minimal in-memory Store used across this package's unit
// tests, in place of a live Postgres instance — the store-level SQL
// behavior itself is exercised separately with go-sqlmock; these tests
// care about the logic layered on top of the Store interface.
type fakeStore struct {
	mu           sync.Mutex
	users        map[string]User
	agents       map[string]Agent
	health       map[string]AgentHealth
	audit        []AuditEntry
	rateCounters map[string]int64
	vault        VaultConfig
	vaultSet     bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        map[string]User{},
		agents:       map[string]Agent{},
		health:       map[string]AgentHealth{},
		rateCounters: map[string]int64{},
	}
}

func (s *fakeStore) CreateUser(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *fakeStore) GetUserByID(ctx context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrStoreNotFound
	}
	return u, nil
}

func (s *fakeStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrStoreNotFound
}

func (s *fakeStore) UpdateUser(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *fakeStore) CountUsers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *fakeStore) CreateAgent(ctx context.Context, a Agent, h AgentHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
	s.health[a.ID] = h
	return nil
}

func (s *fakeStore) GetAgent(ctx context.Context, id string) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return Agent{}, ErrStoreNotFound
	}
	return a, nil
}

func (s *fakeStore) ListAgents(ctx context.Context) ([]Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out, nil
}

func (s *fakeStore) UpdateAgent(ctx context.Context, a Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
	return nil
}

func (s *fakeStore) DeleteAgent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agents, id)
	delete(s.health, id)
	return nil
}

func (s *fakeStore) GetAgentHealth(ctx context.Context, agentID string) (AgentHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.health[agentID]
	if !ok {
		return AgentHealth{}, ErrStoreNotFound
	}
	return h, nil
}

func (s *fakeStore) UpdateAgentHealth(ctx context.Context, h AgentHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[h.AgentID] = h
	return nil
}

func (s *fakeStore) ListHealthyAgents(ctx context.Context) ([]Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Agent, 0, len(s.agents))
	for id, a := range s.agents {
		if h, ok := s.health[id]; ok && h.Status == HealthOnline {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) LatestFingerprint(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.audit) == 0 {
		return genesisFingerprint, nil
	}
	return s.audit[len(s.audit)-1].Fingerprint, nil
}

func (s *fakeStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s *fakeStore) QueryAudit(ctx context.Context, filters AuditFilters, page, limit int) ([]AuditEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Newest first, matching the Postgres implementation's ordering.
	all := make([]AuditEntry, len(s.audit))
	for i, e := range s.audit {
		all[len(s.audit)-1-i] = e
	}
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (s *fakeStore) IncrementRateLimit(ctx context.Context, key string, windowStart time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	compositeKey := key + "|" + windowStart.String()
	s.rateCounters[compositeKey]++
	return s.rateCounters[compositeKey], nil
}

func (s *fakeStore) PruneRateLimits(ctx context.Context, olderThan time.Time) error {
	return nil
}

func (s *fakeStore) GetVaultConfig(ctx context.Context) (VaultConfig, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault, s.vaultSet, nil
}

func (s *fakeStore) PutVaultConfig(ctx context.Context, v VaultConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vault = v
	s.vaultSet = true
	return nil
}

func (s *fakeStore) Close() error { return nil }
