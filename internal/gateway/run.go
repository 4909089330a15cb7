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
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/peanutlabs/agent-gateway/internal/shared/logger"
)

// Run wires every component and blocks serving HTTP, mirroring the
// teacher's Run() in orchestrator/run.go: initializeComponents, mount
// routes with gorilla/mux + rs/cors, start a background sweep, then
// http.ListenAndServe.
func Run() {
	log.Println("Starting Peanut Agent Gateway...")

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer store.Close()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		redisClient = redis.NewClient(opts)
	}

	cipher, err := newVaultCipher(cfg.VaultKeyHex)
	if err != nil {
		log.Fatalf("vault cipher: %v", err)
	}

	audit := NewAuditChain(store)
	minter := NewSessionMinter(cfg.SessionSecret)
	limiter := NewRateLimiter(store, redisClient)
	authCore := NewAuthCore(store, audit, minter)
	registry := NewAgentRegistry(store, audit)
	healthMonitor := NewHealthMonitor(store)
	dispatcher := NewDispatcher(store, audit)
	vault := NewVault(store, audit, cipher)
	metrics := NewMetricsCollector()

	bootstrapAdmin(context.Background(), store, authCore, cfg)

	if cfg.AgentConfigDir != "" {
		defs, err := LoadAgentSeeds(cfg.AgentConfigDir)
		if err != nil {
			log.Printf("agent seed: %v", err)
		} else if err := SeedAgents(context.Background(), registry, defs); err != nil {
			log.Printf("agent seed: %v", err)
		}
	}

	go runHealthSweep(healthMonitor, dispatcher)

	r := mux.NewRouter()
	mountRoutes(r, routeDeps{
		auth:       authCore,
		minter:     minter,
		limiter:    limiter,
		registry:   registry,
		health:     healthMonitor,
		dispatcher: dispatcher,
		vault:      vault,
		audit:      audit,
		store:      store,
		metrics:    metrics,
		prod:       cfg.Production(),
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	handler := requestIDMiddleware(c.Handler(r))

	log.Printf("Peanut Agent Gateway listening on port %s", cfg.ListenPort)
	log.Fatal(http.ListenAndServe(":"+cfg.ListenPort, handler))
}

// bootstrapAdmin seeds admin@peanut.local when the users table is empty,
// per spec.md §6's seeded-state requirement.
func bootstrapAdmin(ctx context.Context, store Store, authCore *AuthCore, cfg *Config) {
	count, err := store.CountUsers(ctx)
	if err != nil {
		log.Printf("bootstrap admin: count users: %v", err)
		return
	}
	if count > 0 {
		return
	}

	password := cfg.DefaultAdminPass
	if password == "" {
		password = "ChangeMe123456!"
	}

	if _, err := authCore.CreateUser(ctx, "admin@peanut.local", "Administrator", password, RoleAdmin); err != nil {
		log.Printf("bootstrap admin: %v", err)
		return
	}
	log.Println("seeded initial admin user admin@peanut.local")
}

// runHealthSweep probes every agent every 30 seconds and invalidates the
// dispatcher's selection cache afterward, since health transitions change
// which agents are eligible.
func runHealthSweep(monitor *HealthMonitor, dispatcher *Dispatcher) {
	ticker := time.NewTicker(healthSweepPeriod)
	defer ticker.Stop()

	sweepLog := logger.New("health_sweep")
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		monitor.RunSweep(ctx)
		dispatcher.InvalidateCache()
		cancel()
		sweepLog.Debug("", "health sweep complete", nil)
	}
}
