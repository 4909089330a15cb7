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

	"github.com/peanutlabs/agent-gateway/internal/shared/logger"
)

// AuditChain is the append-only, hash-chained log described in spec.md
// §4.A. Appends are serialized by mu so that "read latest fingerprint,
// then insert" runs as one atomic step from the chain's point of view, per
// the single-writer requirement in spec.md §9 — the alternative (a
// database-level transaction wrapping both statements) would work too, but
// a process-local mutex is simpler for a single-node deployment and is the
// mechanism this gateway documents and uses.
type AuditChain struct {
	store Store
	log   *logger.Logger
	mu    sync.Mutex
}

func NewAuditChain(store Store) *AuditChain {
	return &AuditChain{store: store, log: logger.New("audit")}
}

// AuditActor carries the identity fields an append call records alongside
// the action.
type AuditActor struct {
	UserID    string
	Email     string
	IP        string
	UserAgent string
}

// Append executes the four-step protocol from spec.md §4.A: read the
// latest fingerprint, generate id/timestamp, compute the new fingerprint,
// and persist as a single insert.
func (c *AuditChain) Append(ctx context.Context, action, resourceType, resourceID string, actor AuditActor, details map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, err := c.store.LatestFingerprint(ctx)
	if err != nil {
		return InternalError("read latest fingerprint", err)
	}

	entry := AuditEntry{
		ID:                  newID(),
		Action:              action,
		ActorUserID:         actor.UserID,
		ActorEmail:          actor.Email,
		IP:                  actor.IP,
		UserAgent:           actor.UserAgent,
		ResourceType:        resourceType,
		ResourceID:          resourceID,
		Details:             details,
		PreviousFingerprint: prev,
		// Truncated to microseconds: Postgres's TIMESTAMPTZ column only
		// keeps that much precision, so the value hashed here must match
		// what a later read scans back, or every genuine row would fail
		// its own integrity check.
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
	}

	fp, err := computeFingerprint(entry)
	if err != nil {
		return InternalError("compute fingerprint", err)
	}
	entry.Fingerprint = fp

	if err := c.store.AppendAudit(ctx, entry); err != nil {
		c.log.ErrorWithCode("", "audit append failed", 500, err, map[string]interface{}{
			"action": action,
		})
		return InternalError("append audit entry", err)
	}
	return nil
}

// QueryResult is the shape returned to the HTTP boundary.
type QueryResult struct {
	Entries       []AuditEntry
	Total         int
	Pages         int
	IntegrityOK   bool
}

// Query implements the read-side protocol: rows ordered by timestamp
// descending, paginated, with every returned row's fingerprint recomputed
// and compared against the stored value. A mismatch never rejects the
// row — it only flips IntegrityOK to false so operators can see tampering
// without losing visibility into the tampered rows themselves.
func (c *AuditChain) Query(ctx context.Context, filters AuditFilters, page, limit int) (QueryResult, error) {
	entries, total, err := c.store.QueryAudit(ctx, filters, page, limit)
	if err != nil {
		return QueryResult{}, InternalError("query audit", err)
	}

	integrityOK := true
	for _, e := range entries {
		recomputed, err := computeFingerprint(e)
		if err != nil || recomputed != e.Fingerprint {
			integrityOK = false
			break
		}
	}

	pages := total / limit
	if total%limit != 0 {
		pages++
	}

	return QueryResult{
		Entries:     entries,
		Total:       total,
		Pages:       pages,
		IntegrityOK: integrityOK,
	}, nil
}
