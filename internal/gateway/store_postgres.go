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
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/peanutlabs/agent-gateway/internal/shared/logger"
)

// PostgresStore implements Store against a single Postgres database,
// following the teacher's sql.Open + createTables + $n placeholder style
// (orchestrator/audit_logger.go, cost/postgres_repository.go).
type PostgresStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgresStore opens the connection, pings it, and creates the
// gateway's named tables if they don't already exist.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db, log: logger.New("store")}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) createTables(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(32) PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		display_name VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL,
		totp_secret VARCHAR(255) NOT NULL DEFAULT '',
		totp_enabled BOOLEAN NOT NULL DEFAULT false,
		backup_codes JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		last_login_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id VARCHAR(32) PRIMARY KEY,
		user_id VARCHAR(32) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		issued_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		id VARCHAR(32) PRIMARY KEY,
		name VARCHAR(64) NOT NULL,
		type VARCHAR(32) NOT NULL,
		endpoint VARCHAR(512) NOT NULL,
		model VARCHAR(255) NOT NULL,
		max_tokens INTEGER NOT NULL,
		temperature DOUBLE PRECISION NOT NULL,
		priority INTEGER NOT NULL,
		weight INTEGER NOT NULL,
		tags JSONB NOT NULL DEFAULT '[]',
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent_health (
		agent_id VARCHAR(32) PRIMARY KEY REFERENCES agents(id) ON DELETE CASCADE,
		status VARCHAR(20) NOT NULL,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		success_rate DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		request_count BIGINT NOT NULL DEFAULT 0,
		error_count BIGINT NOT NULL DEFAULT 0,
		last_checked_at TIMESTAMPTZ NOT NULL,
		details TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id VARCHAR(32) PRIMARY KEY,
		action VARCHAR(64) NOT NULL,
		actor_user_id VARCHAR(32) NOT NULL DEFAULT '',
		actor_email VARCHAR(255) NOT NULL DEFAULT '',
		ip VARCHAR(64) NOT NULL DEFAULT '',
		user_agent VARCHAR(512) NOT NULL DEFAULT '',
		resource_type VARCHAR(64) NOT NULL DEFAULT '',
		resource_id VARCHAR(64) NOT NULL DEFAULT '',
		details JSONB NOT NULL DEFAULT '{}',
		previous_fingerprint VARCHAR(64) NOT NULL,
		fingerprint VARCHAR(64) NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_log_actor ON audit_log(actor_user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);

	CREATE TABLE IF NOT EXISTS rate_limit_windows (
		key VARCHAR(255) NOT NULL,
		window_start TIMESTAMPTZ NOT NULL,
		count BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (key, window_start)
	);

	CREATE TABLE IF NOT EXISTS vault_config (
		id SMALLINT PRIMARY KEY DEFAULT 1,
		api_key_ciphertext TEXT,
		base_url VARCHAR(512) NOT NULL,
		model VARCHAR(255) NOT NULL,
		max_tokens_per_request INTEGER NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK (id = 1)
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// ---- Users ----

func (s *PostgresStore) CreateUser(ctx context.Context, u User) error {
	codes, _ := json.Marshal(u.BackupCodes)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, role,
			totp_secret, totp_enabled, backup_codes, created_at, updated_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.ID, strings.ToLower(u.Email), u.DisplayName, u.PasswordHash, u.Role,
		u.TOTPSecret, u.TOTPEnabled, codes, u.CreatedAt, u.UpdatedAt, nullTime(u.LastLoginAt))
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ConflictError("email already registered")
		}
		return InternalError("create user", err)
	}
	return nil
}

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var u User
	var codes []byte
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role,
		&u.TOTPSecret, &u.TOTPEnabled, &codes, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if err == sql.ErrNoRows {
		return User{}, ErrStoreNotFound
	}
	if err != nil {
		return User{}, InternalError("scan user", err)
	}
	_ = json.Unmarshal(codes, &u.BackupCodes)
	if lastLogin.Valid {
		u.LastLoginAt = lastLogin.Time
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, role, totp_secret,
			totp_enabled, backup_codes, created_at, updated_at, last_login_at
		FROM users WHERE id = $1
	`, id)
	return s.scanUser(row)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, role, totp_secret,
			totp_enabled, backup_codes, created_at, updated_at, last_login_at
		FROM users WHERE email = $1
	`, strings.ToLower(email))
	return s.scanUser(row)
}

func (s *PostgresStore) UpdateUser(ctx context.Context, u User) error {
	codes, _ := json.Marshal(u.BackupCodes)
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET display_name=$2, password_hash=$3, role=$4, totp_secret=$5,
			totp_enabled=$6, backup_codes=$7, updated_at=$8, last_login_at=$9
		WHERE id=$1
	`, u.ID, u.DisplayName, u.PasswordHash, u.Role, u.TOTPSecret, u.TOTPEnabled,
		codes, u.UpdatedAt, nullTime(u.LastLoginAt))
	if err != nil {
		return InternalError("update user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError("user")
	}
	return nil
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, InternalError("count users", err)
	}
	return n, nil
}

// ---- Agents ----

func (s *PostgresStore) CreateAgent(ctx context.Context, a Agent, h AgentHealth) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return InternalError("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	tags, _ := json.Marshal(a.Tags)
	metadata, _ := json.Marshal(a.Metadata)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agents (id, name, type, endpoint, model, max_tokens, temperature,
			priority, weight, tags, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, a.ID, a.Name, a.Type, a.Endpoint, a.Model, a.MaxTokens, a.Temperature,
		a.Priority, a.Weight, tags, metadata, a.CreatedAt, a.UpdatedAt); err != nil {
		return InternalError("create agent", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agent_health (agent_id, status, latency_ms, success_rate,
			request_count, error_count, last_checked_at, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, h.AgentID, h.Status, h.LatencyMS, h.SuccessRate, h.RequestCount,
		h.ErrorCount, h.LastCheckedAt, h.Details); err != nil {
		return InternalError("create agent health", err)
	}

	if err := tx.Commit(); err != nil {
		return InternalError("commit create agent", err)
	}
	return nil
}

func (s *PostgresStore) scanAgent(row *sql.Row) (Agent, error) {
	var a Agent
	var tags, metadata []byte
	err := row.Scan(&a.ID, &a.Name, &a.Type, &a.Endpoint, &a.Model, &a.MaxTokens,
		&a.Temperature, &a.Priority, &a.Weight, &tags, &metadata, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return Agent{}, ErrStoreNotFound
	}
	if err != nil {
		return Agent{}, InternalError("scan agent", err)
	}
	_ = json.Unmarshal(tags, &a.Tags)
	_ = json.Unmarshal(metadata, &a.Metadata)
	return a, nil
}

func (s *PostgresStore) GetAgent(ctx context.Context, id string) (Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, endpoint, model, max_tokens, temperature,
			priority, weight, tags, metadata, created_at, updated_at
		FROM agents WHERE id = $1
	`, id)
	return s.scanAgent(row)
}

func (s *PostgresStore) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, endpoint, model, max_tokens, temperature,
			priority, weight, tags, metadata, created_at, updated_at
		FROM agents ORDER BY name
	`)
	if err != nil {
		return nil, InternalError("list agents", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Agent
	for rows.Next() {
		var a Agent
		var tags, metadata []byte
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.Endpoint, &a.Model, &a.MaxTokens,
			&a.Temperature, &a.Priority, &a.Weight, &tags, &metadata, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, InternalError("scan agent", err)
		}
		_ = json.Unmarshal(tags, &a.Tags)
		_ = json.Unmarshal(metadata, &a.Metadata)
		out = append(out, a)
	}
	return out, nil
}

func (s *PostgresStore) UpdateAgent(ctx context.Context, a Agent) error {
	tags, _ := json.Marshal(a.Tags)
	metadata, _ := json.Marshal(a.Metadata)
	res, err := s.db.ExecContext(ctx, `
		UPDATE agents SET name=$2, endpoint=$3, model=$4, max_tokens=$5, temperature=$6,
			priority=$7, weight=$8, tags=$9, metadata=$10, updated_at=$11
		WHERE id=$1
	`, a.ID, a.Name, a.Endpoint, a.Model, a.MaxTokens, a.Temperature,
		a.Priority, a.Weight, tags, metadata, a.UpdatedAt)
	if err != nil {
		return InternalError("update agent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError("agent")
	}
	return nil
}

func (s *PostgresStore) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return InternalError("delete agent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError("agent")
	}
	return nil
}

// ---- Agent health ----

func (s *PostgresStore) GetAgentHealth(ctx context.Context, agentID string) (AgentHealth, error) {
	var h AgentHealth
	h.AgentID = agentID
	err := s.db.QueryRowContext(ctx, `
		SELECT status, latency_ms, success_rate, request_count, error_count,
			last_checked_at, details
		FROM agent_health WHERE agent_id = $1
	`, agentID).Scan(&h.Status, &h.LatencyMS, &h.SuccessRate, &h.RequestCount,
		&h.ErrorCount, &h.LastCheckedAt, &h.Details)
	if err == sql.ErrNoRows {
		return AgentHealth{}, ErrStoreNotFound
	}
	if err != nil {
		return AgentHealth{}, InternalError("get agent health", err)
	}
	return h, nil
}

func (s *PostgresStore) UpdateAgentHealth(ctx context.Context, h AgentHealth) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_health SET status=$2, latency_ms=$3, success_rate=$4,
			request_count=$5, error_count=$6, last_checked_at=$7, details=$8
		WHERE agent_id=$1
	`, h.AgentID, h.Status, h.LatencyMS, h.SuccessRate, h.RequestCount,
		h.ErrorCount, h.LastCheckedAt, h.Details)
	if err != nil {
		return InternalError("update agent health", err)
	}
	return nil
}

func (s *PostgresStore) ListHealthyAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.type, a.endpoint, a.model, a.max_tokens, a.temperature,
			a.priority, a.weight, a.tags, a.metadata, a.created_at, a.updated_at
		FROM agents a JOIN agent_health h ON h.agent_id = a.id
		WHERE h.status = 'online'
		ORDER BY a.name
	`)
	if err != nil {
		return nil, InternalError("list healthy agents", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Agent
	for rows.Next() {
		var a Agent
		var tags, metadata []byte
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.Endpoint, &a.Model, &a.MaxTokens,
			&a.Temperature, &a.Priority, &a.Weight, &tags, &metadata, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, InternalError("scan agent", err)
		}
		_ = json.Unmarshal(tags, &a.Tags)
		_ = json.Unmarshal(metadata, &a.Metadata)
		out = append(out, a)
	}
	return out, nil
}

// ---- Audit chain ----

func (s *PostgresStore) LatestFingerprint(ctx context.Context) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint FROM audit_log ORDER BY timestamp DESC, id DESC LIMIT 1
	`).Scan(&fp)
	if err == sql.ErrNoRows {
		return genesisFingerprint, nil
	}
	if err != nil {
		return "", InternalError("latest fingerprint", err)
	}
	return fp, nil
}

func (s *PostgresStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	details, _ := json.Marshal(e.Details)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, actor_user_id, actor_email, ip, user_agent,
			resource_type, resource_id, details, previous_fingerprint, fingerprint, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, e.ID, e.Action, e.ActorUserID, e.ActorEmail, e.IP, e.UserAgent,
		e.ResourceType, e.ResourceID, details, e.PreviousFingerprint, e.Fingerprint, e.Timestamp)
	if err != nil {
		return InternalError("append audit", err)
	}
	return nil
}

func (s *PostgresStore) QueryAudit(ctx context.Context, filters AuditFilters, page, limit int) ([]AuditEntry, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.ActorID != "" {
		where = append(where, "actor_user_id = "+arg(filters.ActorID))
	}
	if filters.Action != "" {
		where = append(where, "action = "+arg(filters.Action))
	}
	if filters.ResourceType != "" {
		where = append(where, "resource_type = "+arg(filters.ResourceType))
	}
	if !filters.From.IsZero() {
		where = append(where, "timestamp >= "+arg(filters.From))
	}
	if !filters.To.IsZero() {
		where = append(where, "timestamp <= "+arg(filters.To))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_log WHERE " + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, InternalError("count audit", err)
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	offset := (page - 1) * limit

	query := fmt.Sprintf(`
		SELECT id, action, actor_user_id, actor_email, ip, user_agent, resource_type,
			resource_id, details, previous_fingerprint, fingerprint, timestamp
		FROM audit_log WHERE %s
		ORDER BY timestamp DESC
		LIMIT %s OFFSET %s
	`, whereClause, arg(limit), arg(offset))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, InternalError("query audit", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var details []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.ActorUserID, &e.ActorEmail, &e.IP,
			&e.UserAgent, &e.ResourceType, &e.ResourceID, &details,
			&e.PreviousFingerprint, &e.Fingerprint, &e.Timestamp); err != nil {
			return nil, 0, InternalError("scan audit", err)
		}
		_ = json.Unmarshal(details, &e.Details)
		entries = append(entries, e)
	}
	return entries, total, nil
}

// ---- Rate limiter ----

// IncrementRateLimit performs the upsert-then-read increment inside one
// round trip via INSERT ... ON CONFLICT, relying on Postgres's own row
// locking for atomicity rather than a hand-rolled transaction retry loop.
func (s *PostgresStore) IncrementRateLimit(ctx context.Context, key string, windowStart time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO rate_limit_windows (key, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (key, window_start) DO UPDATE SET count = rate_limit_windows.count + 1
		RETURNING count
	`, key, windowStart).Scan(&count)
	if err != nil {
		return 0, InternalError("increment rate limit", err)
	}
	return count, nil
}

func (s *PostgresStore) PruneRateLimits(ctx context.Context, olderThan time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_windows WHERE window_start < $1`, olderThan)
	if err != nil {
		return InternalError("prune rate limits", err)
	}
	return nil
}

// ---- Vault ----

func (s *PostgresStore) GetVaultConfig(ctx context.Context) (VaultConfig, bool, error) {
	var v VaultConfig
	var ciphertext sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT api_key_ciphertext, base_url, model, max_tokens_per_request, updated_at
		FROM vault_config WHERE id = 1
	`).Scan(&ciphertext, &v.BaseURL, &v.Model, &v.MaxTokensPerRequest, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return VaultConfig{}, false, nil
	}
	if err != nil {
		return VaultConfig{}, false, InternalError("get vault config", err)
	}
	v.APIKeyCiphertext = ciphertext.String
	return v, true, nil
}

func (s *PostgresStore) PutVaultConfig(ctx context.Context, v VaultConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vault_config (id, api_key_ciphertext, base_url, model, max_tokens_per_request, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			api_key_ciphertext = EXCLUDED.api_key_ciphertext,
			base_url = EXCLUDED.base_url,
			model = EXCLUDED.model,
			max_tokens_per_request = EXCLUDED.max_tokens_per_request,
			updated_at = EXCLUDED.updated_at
	`, nullString(v.APIKeyCiphertext), v.BaseURL, v.Model, v.MaxTokensPerRequest, v.UpdatedAt)
	if err != nil {
		return InternalError("put vault config", err)
	}
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
