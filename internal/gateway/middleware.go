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
	"net/http"
	"strings"

	"github.com/peanutlabs/agent-gateway/internal/shared/logger"
)

type contextKey string

const (
	ctxKeyRequestID contextKey = "request_id"
	ctxKeySession   contextKey = "session"
	ctxKeyActor     contextKey = "actor"
)

// requestIDMiddleware stamps every request with an opaque id, mirroring
// the teacher's ctxKeyRequestID pattern (orchestrator/run.go) generalized
// to a standard net/http middleware instead of a per-handler call.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := newID()
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// sessionFromContext retrieves the sessionClaims authMiddleware
// stashed, for handlers that need the authenticated identity.
func sessionFromContext(ctx context.Context) (sessionClaims, bool) {
	s, ok := ctx.Value(ctxKeySession).(sessionClaims)
	return s, ok
}

func actorFromRequest(r *http.Request) AuditActor {
	actor, _ := r.Context().Value(ctxKeyActor).(AuditActor)
	actor.IP = clientIP(r)
	actor.UserAgent = r.UserAgent()
	return actor
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}

// authMiddleware requires a valid session cookie, rejecting with
// UNAUTHORIZED otherwise, and stashes the parsed claims plus an actor
// value for downstream handlers and audit calls.
func authMiddleware(minter *SessionMinter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil {
				writeError(w, UnauthorizedError("authentication required"))
				return
			}
			claims, err := minter.ParseSession(cookie.Value)
			if err != nil {
				writeError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeySession, claims)
			ctx = context.WithValue(ctx, ctxKeyActor, AuditActor{UserID: claims.UserID, Email: claims.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireRole gates a handler to the named roles; authMiddleware must run
// first so session claims are already in context.
func requireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := sessionFromContext(r.Context())
			if !ok {
				writeError(w, UnauthorizedError("authentication required"))
				return
			}
			if !allowed[claims.Role] {
				writeError(w, ForbiddenError("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware wires RateLimiter.Check in front of a handler. keyFn
// derives the bucket key (IP for anonymous endpoints, user id for
// authenticated ones) from the request.
func rateLimitMiddleware(limiter *RateLimiter, policy RateLimitPolicy, domain string, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain + ":" + keyFn(r)
			if _, err := limiter.Check(r.Context(), key, policy); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func keyByIP(r *http.Request) string { return clientIP(r) }

func keyByUser(r *http.Request) string {
	claims, ok := sessionFromContext(r.Context())
	if !ok {
		return clientIP(r)
	}
	return claims.UserID
}
