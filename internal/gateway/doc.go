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

/*
Package gateway implements the AI Agent Gateway: password+TOTP
authentication, a hash-chained audit log, adaptive rate limiting,
weighted dispatch across registered LLM backends, and an encrypted
vault for a single upstream API credential.

The package is organized around five components wired together in
Run: AuthCore (login/TOTP/password), AuditChain (append-only log),
RateLimiter (tumbling-window counters), AgentRegistry+Dispatcher+
HealthMonitor (backend CRUD, selection, health probing), and Vault
(credential storage and completion proxying). All five sit behind one
Store interface backed by PostgresStore.

Entities are immutable value types; mutator methods on User and
AgentHealth return a new value that the caller persists explicitly.
*/
package gateway
