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

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peanutlabs/agent-gateway/internal/shared/logger"
)

// routeDeps is every wired component mountRoutes needs to build handlers
// and middleware chains.
type routeDeps struct {
	auth       *AuthCore
	minter     *SessionMinter
	limiter    *RateLimiter
	registry   *AgentRegistry
	health     *HealthMonitor
	dispatcher *Dispatcher
	vault      *Vault
	audit      *AuditChain
	store      Store
	metrics    *MetricsCollector
	prod       bool
}

// mountRoutes registers the full /api/v1 surface from spec.md §6 plus the
// operational endpoints (/health, /metrics, /prometheus), matching the
// teacher's gorilla/mux route table (orchestrator/run.go).
func mountRoutes(r *mux.Router, d routeDeps) {
	log := logger.New("http")

	authRequired := authMiddleware(d.minter, log)
	adminOnly := requireRole(RoleAdmin)
	adminOrOperator := requireRole(RoleAdmin, RoleOperator)

	loginLimit := rateLimitMiddleware(d.limiter, PolicyLogin, "login", keyByIP)
	totpLimit := rateLimitMiddleware(d.limiter, PolicyTOTP, "totp", keyByIP)
	dispatchLimit := rateLimitMiddleware(d.limiter, PolicyDispatch, "dispatch", keyByUser)
	vaultCompleteLimit := rateLimitMiddleware(d.limiter, PolicyVaultComplete, "vault_complete", keyByUser)

	authHandlers := NewAuthHandlers(d.auth, d.minter, d.prod)
	agentHandlers := NewAgentHandlers(d.registry, d.health, d.store, d.dispatcher.InvalidateCache)
	dispatchHandlers := NewDispatchHandlers(d.dispatcher)
	auditHandlers := NewAuditHandlers(d.audit)
	vaultHandlers := NewVaultHandlers(d.vault)
	liveness := NewLivenessHandler()

	r.HandleFunc("/health", liveness.Serve).Methods("GET")
	r.HandleFunc("/metrics", d.metrics.ServeSimpleMetrics).Methods("GET")
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/login", loginLimit(http.HandlerFunc(authHandlers.Login)).ServeHTTP).Methods("POST")
	api.HandleFunc("/auth/totp/verify", totpLimit(http.HandlerFunc(authHandlers.VerifyTOTP)).ServeHTTP).Methods("POST")

	authed := api.PathPrefix("").Subrouter()
	authed.Use(authRequired)
	authed.HandleFunc("/auth/logout", authHandlers.Logout).Methods("POST")
	authed.HandleFunc("/auth/me", authHandlers.Me).Methods("GET")
	authed.HandleFunc("/auth/totp/setup", authHandlers.SetupTOTP).Methods("POST")
	authed.HandleFunc("/auth/password", authHandlers.ChangePassword).Methods("POST")

	authed.HandleFunc("/agents", agentHandlers.List).Methods("GET")
	authed.Handle("/agents", adminOrOperator(http.HandlerFunc(agentHandlers.Create))).Methods("POST")
	authed.Handle("/agents/{id}", adminOrOperator(http.HandlerFunc(agentHandlers.Update))).Methods("PUT")
	authed.Handle("/agents/{id}", adminOnly(http.HandlerFunc(agentHandlers.Delete))).Methods("DELETE")
	authed.HandleFunc("/agents/{id}/health", agentHandlers.ForceHealth).Methods("GET")

	authed.Handle("/openclaw/dispatch", dispatchLimit(http.HandlerFunc(dispatchHandlers.Dispatch))).Methods("POST")

	authed.Handle("/audit", adminOrOperator(http.HandlerFunc(auditHandlers.Query))).Methods("GET")

	authed.HandleFunc("/vault/status", vaultHandlers.Status).Methods("GET")
	authed.Handle("/vault/config", adminOnly(http.HandlerFunc(vaultHandlers.GetConfig))).Methods("GET")
	authed.Handle("/vault/config", adminOnly(http.HandlerFunc(vaultHandlers.PutConfig))).Methods("PUT")
	authed.Handle("/vault/complete", vaultCompleteLimit(http.HandlerFunc(vaultHandlers.Complete))).Methods("POST")
	authed.Handle("/vault/usage", adminOrOperator(http.HandlerFunc(vaultHandlers.Usage))).Methods("GET")
}
