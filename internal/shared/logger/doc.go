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
Package logger provides structured JSON logging for the gateway's
subsystems (audit, rate limiter, auth core, orchestrator, vault, HTTP
boundary).

Each entry is a single JSON object written through the standard library's
log package (stderr unless its output is changed), after log's date/time
prefix:

	{"timestamp":"2026-01-15T10:30:00.123456789Z","level":"INFO",
	 "component":"auth","instance_id":"i-abc123","container":"gateway-0",
	 "request_id":"req-456","message":"login succeeded","fields":{"method":"totp"}}

Create one Logger per component and reuse it:

	log := logger.New("auth")
	log.Info(requestID, "login succeeded", map[string]interface{}{"method": "password"})

Logger reads INSTANCE_ID from the environment and the process hostname for
the container field; both are best-effort and default to "unknown".
*/
package logger
