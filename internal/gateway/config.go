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
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Config is read once at startup from the process environment, mirroring
// the teacher's getEnv/initializeComponents pattern (orchestrator/run.go).
type Config struct {
	SessionSecret       string
	VaultKeyHex         string
	DatabaseURL         string
	ListenPort          string
	CORSOrigins         []string
	DataDir             string
	LogLevel            string
	DefaultAdminPass    string
	AgentConfigDir      string
	RedisURL            string
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// LoadConfig reads and validates the gateway's environment configuration.
// DATABASE_URL takes precedence; if absent, a DSN is built from the split
// DATABASE_HOST/PORT/NAME/USER/PASSWORD/SSLMODE vars, as the teacher does
// for its own Postgres connection in orchestrator/run.go.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		VaultKeyHex:      os.Getenv("VAULT_KEY_HEX"),
		ListenPort:       getEnv("LISTEN_PORT", "8080"),
		DataDir:          getEnv("DATA_DIR", "."),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		DefaultAdminPass: os.Getenv("DEFAULT_ADMIN_PASSWORD"),
		AgentConfigDir:   os.Getenv("AGENT_CONFIG_DIR"),
		RedisURL:         os.Getenv("REDIS_URL"),
	}

	if origins := os.Getenv("CORS_ORIGIN"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}
	if len(cfg.VaultKeyHex) != 64 {
		return nil, fmt.Errorf("VAULT_KEY_HEX must be 64 hex characters (32 bytes)")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		dbHost := os.Getenv("DATABASE_HOST")
		dbPassword := os.Getenv("DATABASE_PASSWORD")
		if dbHost == "" || dbPassword == "" {
			return nil, fmt.Errorf("DATABASE_URL or DATABASE_HOST/DATABASE_PASSWORD must be set")
		}
		dbPort := getEnv("DATABASE_PORT", "5432")
		dbName := getEnv("DATABASE_NAME", "gateway")
		dbUser := getEnv("DATABASE_USER", "gateway")
		dbSSLMode := getEnv("DATABASE_SSLMODE", "require")
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			url.QueryEscape(dbUser), url.QueryEscape(dbPassword), dbHost, dbPort, dbName, dbSSLMode)
	}

	return cfg, nil
}

// Production reports whether the gateway is running with a non-debug log
// level, used to decide whether session cookies set the Secure flag.
func (c *Config) Production() bool {
	return !strings.EqualFold(c.LogLevel, "debug")
}
