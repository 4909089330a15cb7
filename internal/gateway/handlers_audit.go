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
	"strconv"
	"time"
)

// AuditHandlers wires AuditChain onto /audit.
type AuditHandlers struct {
	audit *AuditChain
}

func NewAuditHandlers(audit *AuditChain) *AuditHandlers {
	return &AuditHandlers{audit: audit}
}

type auditQueryResponse struct {
	Entries       []AuditEntry `json:"entries"`
	Total         int          `json:"total"`
	Pages         int          `json:"pages"`
	IntegrityValid bool        `json:"integrity_valid"`
}

func (h *AuditHandlers) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := AuditFilters{
		ActorID:      q.Get("actor_id"),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
	}
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filters.From = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filters.To = t
		}
	}

	page := 1
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	limit := 50
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		limit = l
	}

	result, err := h.audit.Query(r.Context(), filters, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, auditQueryResponse{
		Entries:        result.Entries,
		Total:          result.Total,
		Pages:          result.Pages,
		IntegrityValid: result.IntegrityOK,
	})
}
