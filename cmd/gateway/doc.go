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
Command gateway runs the AI Agent Gateway: authentication, a tamper-evident
audit log, adaptive rate limiting, weighted LLM backend dispatch, and a
credential vault for a sensitive upstream API.

# Usage

	gateway

# Environment Variables

Required:
  - SESSION_SECRET: signing key for session/intermediate tokens (>=32 bytes)
  - VAULT_KEY_HEX: 64 hex chars, the vault's AES-256 key
  - DATABASE_URL (or DATABASE_HOST/PORT/NAME/USER/PASSWORD/SSLMODE)

Optional:
  - LISTEN_PORT (default 8080)
  - CORS_ORIGIN: comma-separated allowed origins
  - DATA_DIR
  - LOG_LEVEL
  - DEFAULT_ADMIN_PASSWORD: seeds admin@peanut.local when no users exist
  - AGENT_CONFIG_DIR: optional YAML directory to seed initial agents
  - REDIS_URL: optional accelerator for the rate limiter

# Example

	export SESSION_SECRET="$(openssl rand -hex 32)"
	export VAULT_KEY_HEX="$(openssl rand -hex 32)"
	export DATABASE_URL="postgres://gateway:pw@localhost:5432/gateway?sslmode=disable"
	./gateway
*/
package main
